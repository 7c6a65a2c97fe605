package runtime

import (
	"fmt"
	"path/filepath"
	"strings"
)

// App holds the scripts found in a directory, keyed by file stem.
type App struct {
	Container *Container
	Scripts   map[string][]Step
}

func NewApp(scriptsDir string, loaders ...ScriptLoader) (*App, error) {
	if len(loaders) == 0 {
		loaders = []ScriptLoader{NewJSONLoader(), NewYAMLLoader()}
	}

	app := App{
		Container: NewContainer(),
		Scripts:   make(map[string][]Step),
	}

	for _, loader := range loaders {
		for _, pattern := range loader.Extensions() {
			files, err := filepath.Glob(filepath.Join(scriptsDir, pattern))
			if err != nil {
				return nil, fmt.Errorf("error reading directory: %w", err)
			}

			for _, file := range files {
				steps, err := loader.Load(file)
				if err != nil {
					return nil, err
				}
				name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
				if _, exists := app.Scripts[name]; exists {
					return nil, fmt.Errorf("duplicate script name %q (%s)", name, file)
				}
				app.RegisterScript(name, steps)
			}
		}
	}

	return &app, nil
}

func (a *App) RegisterRunner(kind JobKind, runner JobRunner) error {
	return a.Container.Register(kind, runner)
}

func (a *App) RegisterScript(name string, steps []Step) {
	a.Scripts[name] = steps
}

// Script returns a copy of the named script.
func (a *App) Script(name string) ([]Step, bool) {
	steps, ok := a.Scripts[name]
	if !ok {
		return nil, false
	}
	return CloneSteps(steps), true
}
