package env

import (
	"fmt"
	"strings"
)

type NamingConvention struct {
	prefix string
}

func NewNamingConvention(prefix string) *NamingConvention {
	return &NamingConvention{prefix: prefix}
}

// FlagToEnv converts flag name to ENV variable name,
// for example "distributor-chunk-size" -> "FILESYNC_DISTRIBUTOR_CHUNK_SIZE".
func (n *NamingConvention) FlagToEnv(flagName string) string {
	if len(flagName) == 0 {
		panic(fmt.Errorf("flag name cannot be empty"))
	}
	return n.prefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// Files are loaded by LoadDotEnv in this order, the first found value wins.
func Files() []string {
	return []string{
		".env.local",
		".env",
	}
}
