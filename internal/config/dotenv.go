package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
)

// DotEnvFile is read from the working directory before flags are parsed.
const DotEnvFile = ".env"

// LoadDotEnv exports variables from the given dotenv files into the process
// environment so flag env bindings such as RUNPOD_API_KEY can see them.
// Variables already set in the environment are left untouched and missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}
