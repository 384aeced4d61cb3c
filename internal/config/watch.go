package config

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadDotEnv loads a .env file at path into the process environment, if
// present. A missing file is not an error; an unparsable one is.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: stat .env: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load .env: %w", err)
	}
	return nil
}

// Watcher reloads a Config from disk whenever its backing file changes and
// hands it to the callback given to Watch. It is separate from the
// reload_config RPC method, which reloads through Load.
type Watcher struct {
	v    *viper.Viper
	path string
}

// Watch starts watching path for changes. onChange is invoked with the
// freshly reloaded, validated Config after each write; parse or validation
// errors are passed to onError instead and the previous config is left in
// place.
func Watch(path string, onChange func(*Config), onError func(error)) (*Watcher, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}

	w := &Watcher{v: v, path: path}
	v.OnConfigChange(func(fsnotify.Event) {
		cfg := Default()
		if err := v.Unmarshal(&cfg); err != nil {
			onError(fmt.Errorf("config: reload unmarshal: %w", err))
			return
		}
		cfg.ConfigPath = path
		if err := cfg.Validate(); err != nil {
			onError(err)
			return
		}
		onChange(&cfg)
	})
	v.WatchConfig()
	return w, nil
}

// Path returns the file this watcher is watching.
func (w *Watcher) Path() string { return w.path }
