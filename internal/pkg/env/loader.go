package env

import (
	"context"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/umisama/go-regexpcache"

	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// LoadDotEnv loads envs from ".env" files if they exist. Existing envs take precedence.
func LoadDotEnv(ctx context.Context, logger log.Logger, osEnvs *Map, fs afero.Fs, dirs []string) *Map {
	envs := FromMap(osEnvs.ToMap())

	for _, dir := range dirs {
		for _, file := range Files() {
			path := filepath.Join(dir, file)
			info, err := fs.Stat(path)
			switch {
			case err != nil && errors.Is(err, afero.ErrFileNotFound):
				continue
			case err != nil:
				logger.Warnf(ctx, `cannot check if path "%s" exists: %s`, path, err)
				continue
			case info.IsDir():
				continue
			}

			fileEnvs, err := LoadEnvFile(fs, path)
			if err != nil {
				logger.Warn(ctx, err.Error())
				continue
			}
			logger.Infof(ctx, `loaded env file "%s"`, path)

			envs.Merge(fileEnvs, false)
		}
	}

	return envs
}

func LoadEnvFile(fs afero.Fs, path string) (*Map, error) {
	content, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Errorf(`cannot read env file "%s": %w`, path, err)
	}

	envs, err := godotenv.Unmarshal(string(content))
	if err != nil {
		return nil, errors.Errorf(`cannot parse env file "%s": %w`, path, err)
	}

	// A line without "=" is parsed as a value with an empty key
	for key := range envs {
		if !regexpcache.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`).MatchString(key) {
			return nil, errors.Errorf(`cannot parse env file "%s": invalid key "%s"`, path, key)
		}
	}

	return FromMap(envs), nil
}
