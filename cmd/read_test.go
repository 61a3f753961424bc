package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adaletdata/uploader/internal/store/local"
	"github.com/adaletdata/uploader/internal/uploader"
)

func executeOut(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func seedLocalStore(t *testing.T, baseDir string) {
	t.Helper()
	store, err := local.New(local.Config{BaseDir: baseDir}, nil)
	require.NoError(t, err)

	fetchedAt := time.Unix(1700000000, 0).UTC()
	require.NoError(t, store.Put(context.Background(), uploader.Record{
		Identity:  "101",
		FetchedAt: fetchedAt,
		Decision: uploader.Decision{
			ID:          "101",
			Daire:       "14. Hukuk Dairesi",
			EsasNo:      "2011/2628",
			KararNo:     "2011/3698",
			KararTarihi: "2011-03-23",
			Ozet:        "tapu iptali özeti",
			IcerikHam:   "tapu iptali karar metni",
		},
	}))
	require.NoError(t, store.Put(context.Background(), uploader.Record{
		Identity:  "102",
		FetchedAt: fetchedAt,
		Decision: uploader.Decision{
			ID:          "102",
			Daire:       "1. Ceza Dairesi",
			EsasNo:      "2012/11",
			KararNo:     "2012/99",
			KararTarihi: "2012-06-05",
			Ozet:        "kasten yaralama",
			IcerikHam:   "ceza karar metni",
		},
	}))
}

func TestReadCmdLocalMode(t *testing.T) {
	baseDir := t.TempDir()
	seedLocalStore(t, baseDir)
	t.Setenv("STORAGE_MODE", "local")
	t.Setenv("UPLOADER_STORAGE_LOCAL_BASE_DIR", baseDir)

	t.Run("search by daire", func(t *testing.T) {
		out, err := executeOut(t, "read", "--daire", "hukuk")
		require.NoError(t, err)

		var results []uploader.Record
		require.NoError(t, json.Unmarshal([]byte(out), &results))
		require.Len(t, results, 1)
		require.Equal(t, "101", results[0].Identity)
	})

	t.Run("read one decision in full", func(t *testing.T) {
		out, err := executeOut(t, "read", "--id", "102")
		require.NoError(t, err)

		var rec uploader.Record
		require.NoError(t, json.Unmarshal([]byte(out), &rec))
		require.Equal(t, "ceza karar metni", rec.Decision.IcerikHam)
	})

	t.Run("no matches", func(t *testing.T) {
		out, err := executeOut(t, "read", "--keyword", "bulunmayan")
		require.NoError(t, err)
		require.Contains(t, out, "No results found.")
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := executeOut(t, "read", "--id", "404")
		require.ErrorIs(t, err, uploader.ErrNotFound)
	})
}
