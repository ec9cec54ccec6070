package cliconfig

import (
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/keboola/go-cluster-filesync/internal/pkg/env"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

const (
	SetByDefault SetBy = iota
	SetByConfigFile
	SetByEnv
	SetByFlag
)

// SetBy describes the source of a configuration value.
type SetBy int

type BindSpec struct {
	// Args are command line arguments without the command name.
	Args []string
	Envs env.Provider
	// EnvNaming converts flag names to ENV names.
	EnvNaming *env.NamingConvention
	// ConfigFileFlag is the name of a flag with path to a YAML or JSON config file, it is optional.
	ConfigFileFlag string
}

// Bind parses flags, ENVs and the config file to the config structure.
// Priority: flag > ENV > config file > the original value of the field.
// The config must be a pointer to a structure, flags are generated by GenerateFlags.
// Keys of the returned map are lower-cased config key paths.
func Bind(fs afero.Fs, flags *pflag.FlagSet, spec BindSpec, config any) (map[string]SetBy, error) {
	if err := GenerateFlags(flags, config); err != nil {
		return nil, err
	}
	if spec.ConfigFileFlag != "" && flags.Lookup(spec.ConfigFileFlag) == nil {
		flags.String(spec.ConfigFileFlag, "", "Path to a YAML or JSON configuration file.")
	}
	if err := flags.Parse(spec.Args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetFs(fs)
	setBy := make(map[string]SetBy)

	// Config file
	if spec.ConfigFileFlag != "" {
		if path, _ := flags.GetString(spec.ConfigFileFlag); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, errors.PrefixErrorf(err, `cannot read config file "%s"`, path)
			}
			for _, key := range v.AllKeys() {
				setBy[key] = SetByConfigFile
			}
		}
	}

	// Flags and ENVs
	errs := errors.NewMultiError()
	flags.VisitAll(func(flag *pflag.Flag) {
		keyPath, ok := flagKeyPath(flag)
		if !ok {
			return
		}
		key := strings.ToLower(keyPath)

		if flag.Changed {
			v.Set(keyPath, flag.Value.String())
			setBy[key] = SetByFlag
			return
		}

		if spec.Envs != nil && spec.EnvNaming != nil {
			if value, found := spec.Envs.Lookup(spec.EnvNaming.FlagToEnv(flag.Name)); found {
				v.Set(keyPath, value)
				setBy[key] = SetByEnv
				return
			}
		}

		// Default value has the lowest priority
		if err := v.BindPFlag(keyPath, flag); err != nil {
			errs.Append(err)
		}
		if _, found := setBy[key]; !found {
			setBy[key] = SetByDefault
		}
	})
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	err := v.Unmarshal(config, func(c *mapstructure.DecoderConfig) {
		c.TagName = TagKey
		c.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
		)
	})
	if err != nil {
		return nil, errors.PrefixError(err, "cannot decode configuration")
	}

	return setBy, nil
}
