package hvmconfigs

import (
	_ "embed"
	"os"
	"path/filepath"

	"github.com/reusee/heapvm/configs"
	"github.com/reusee/heapvm/logs"
)

//go:embed schema.cue
var Schema string

var filenames = []string{
	"hvm.cue",
	".hvm.cue",
}

// ConfigsLoader reads hvm.cue files from the working directory, the user
// config directory and /etc. Earlier files take precedence.
func (Module) ConfigsLoader(
	logger logs.Logger,
) configs.Loader {
	var dirs []string
	if dir, err := os.Getwd(); err == nil {
		dirs = append(dirs, dir)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, dir)
	}
	dirs = append(dirs, "/etc")

	paths := findFiles(dirs)
	if len(paths) > 0 {
		logger.Info("config file",
			"paths", paths,
		)
	}
	loader := configs.NewLoader(paths, Schema)
	if name := configs.First[string](loader, "log_level"); name != "" {
		if err := logs.SetLevel(name); err != nil {
			panic(err)
		}
	}
	return loader
}

func findFiles(dirs []string) (paths []string) {
	for _, dir := range dirs {
		for _, filename := range filenames {
			path := filepath.Join(dir, filename)
			if _, err := os.Stat(path); err == nil {
				paths = append(paths, path)
			}
		}
	}
	return
}
