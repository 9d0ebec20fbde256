package cmds

import "os"

var GlobalExecutor = NewExecutor()

func Define(name string, command *Command) {
	GlobalExecutor.Define(name, command)
}

func Execute(args []string) error {
	return GlobalExecutor.Execute(args)
}

// ExecuteArgs runs the commands given on the process command line.
func ExecuteArgs() error {
	return GlobalExecutor.Execute(os.Args[1:])
}
