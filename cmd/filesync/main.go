package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/keboola/go-cluster-filesync/internal/pkg/env"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/filesync/cmd"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

func main() {
	root := cmd.NewRootCommand(cmd.Runtime{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Envs:   env.FromOs(),
		Fs:     afero.NewOsFs(),
	})
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, errors.PrefixError(err, "fatal error").Error()) // nolint:forbidigo
		os.Exit(1)
	}
}
