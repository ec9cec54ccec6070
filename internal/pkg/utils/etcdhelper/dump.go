package etcdhelper

import (
	"context"
	"strings"

	etcd "go.etcd.io/etcd/client/v3"

	"github.com/keboola/go-cluster-filesync/internal/pkg/encoding/json"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

type KV struct {
	Key   string
	Value string
	Lease int64
}

// DumpAll loads all KVs from the etcd namespace, ordered by key.
func DumpAll(ctx context.Context, client etcd.KV) (out []KV, err error) {
	resp, err := client.Get(ctx, "", etcd.WithPrefix(), etcd.WithSort(etcd.SortByKey, etcd.SortAscend))
	if err != nil {
		return nil, errors.Errorf(`cannot dump etcd KVs: %w`, err)
	}
	for _, kv := range resp.Kvs {
		out = append(out, KV{Key: string(kv.Key), Value: string(kv.Value), Lease: kv.Lease})
	}
	return out, nil
}

func DumpAllKeys(ctx context.Context, client etcd.KV) (out []string, err error) {
	kvs, err := DumpAll(ctx, client)
	if err != nil {
		return nil, err
	}
	for _, kv := range kvs {
		out = append(out, kv.Key)
	}
	return out, nil
}

func DumpAllToString(ctx context.Context, client etcd.KV) (string, error) {
	kvs, err := DumpAll(ctx, client)
	if err != nil {
		return "", err
	}
	return KVsToString(kvs), nil
}

// KVsToString formats KVs in a human-readable form, JSON values are pretty printed.
func KVsToString(kvs []KV) string {
	var out strings.Builder
	for _, kv := range kvs {
		value := kv.Value
		var decoded any
		if err := json.DecodeString(value, &decoded); err == nil {
			if _, isObject := decoded.(map[string]any); isObject {
				value = json.MustEncodeString(decoded, true)
			}
		}
		out.WriteString("<<<<<\n")
		out.WriteString(kv.Key)
		if kv.Lease > 0 {
			out.WriteString(" (lease)")
		}
		out.WriteString("\n-----\n")
		out.WriteString(value)
		out.WriteString("\n>>>>>\n\n")
	}
	return strings.TrimSuffix(out.String(), "\n")
}
