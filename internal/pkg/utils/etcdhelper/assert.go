package etcdhelper

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/keboola/go-utils/pkg/wildcards"
	"github.com/stretchr/testify/assert"
	"github.com/umisama/go-regexpcache"
	etcd "go.etcd.io/etcd/client/v3"
)

type AssertOption func(*assertConfig)

type assertConfig struct {
	ignored []string
}

// WithIgnoredKeyPattern skips keys matching the regular expression, for example leases of other nodes.
func WithIgnoredKeyPattern(pattern string) AssertOption {
	return func(c *assertConfig) {
		c.ignored = append(c.ignored, pattern)
	}
}

// AssertKeys compares all keys in etcd with the expected keys, in any order.
// Expected keys may contain wildcards, see the wildcards package.
func AssertKeys(t assert.TestingT, client etcd.KV, expected []string, opts ...AssertOption) bool {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}

	kvs, err := dumpFiltered(client, opts)
	if err != nil {
		t.Errorf(`cannot dump etcd keys: %s`, err)
		return false
	}

	remaining := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		remaining = append(remaining, kv.Key)
	}

	var missing []string
	for _, pattern := range slices.Sorted(slices.Values(expected)) {
		i := slices.IndexFunc(remaining, func(key string) bool { return wildcards.Compare(pattern, key) == nil })
		if i < 0 {
			missing = append(missing, pattern)
			continue
		}
		remaining = slices.Delete(remaining, i, i+1)
	}

	ok := true
	if len(missing) > 0 {
		ok = assert.Fail(t, fmt.Sprintf("expected keys not found in etcd:\n%s", strings.Join(missing, "\n")))
	}
	if len(remaining) > 0 {
		ok = assert.Fail(t, fmt.Sprintf("unexpected keys found in etcd:\n%s", strings.Join(remaining, "\n")))
	}
	return ok
}

// AssertKVsString compares all KVs in etcd, formatted by KVsToString, with the expected string.
// The expected string may contain wildcards, see the wildcards package.
func AssertKVsString(t assert.TestingT, client etcd.KV, expected string, opts ...AssertOption) bool {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}

	kvs, err := dumpFiltered(client, opts)
	if err != nil {
		t.Errorf(`cannot dump etcd KVs: %s`, err)
		return false
	}
	return wildcards.Assert(t, strings.TrimSpace(expected), strings.TrimSpace(KVsToString(kvs)))
}

func dumpFiltered(client etcd.KV, opts []AssertOption) ([]KV, error) {
	c := assertConfig{}
	for _, o := range opts {
		o(&c)
	}

	kvs, err := DumpAll(context.Background(), client)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(kvs, func(kv KV) bool {
		return slices.ContainsFunc(c.ignored, func(pattern string) bool {
			return regexpcache.MustCompile(pattern).MatchString(kv.Key)
		})
	}), nil
}
