package ledger

import (
	"fmt"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarkpan/quarkpan/internal/models"
)

// TestLedgerRoundTrip verifies N written records read back identically.
func TestLedgerRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	want := []models.RetryRecord{
		{Seq: 1, Path: []string{"Season 1"}, NodeID: "fid-1"},
		{Seq: 2, Path: []string{"Season 1", "Extras"}, NodeID: "fid-2"},
		{Seq: 7, Path: []string{"Root"}, NodeID: "fid-7"},
		{Seq: 9, NodeID: "fid-9"},
	}

	l, err := Open(fs, "share/retry.txt", false)
	require.NoError(t, err)
	for _, r := range want {
		require.NoError(t, l.Append(r))
	}
	require.NoError(t, l.Close())
	assert.Equal(t, len(want), l.Count())

	got, err := Read(fs, "share/retry.txt")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFormatRecord(t *testing.T) {
	line := FormatRecord(models.RetryRecord{Seq: 3, Path: []string{"A", "B"}, NodeID: "x"})
	assert.Equal(t, "3 | A | B | x", line)

	// Separators inside names must not add fields
	line = FormatRecord(models.RetryRecord{Seq: 1, Path: []string{"a | b"}, NodeID: "x"})
	r, err := ParseRecord(line)
	require.NoError(t, err)
	assert.Len(t, r.Path, 1)
}

func TestParseRecordErrors(t *testing.T) {
	for _, line := range []string{"", "justone", "x | a | id", "1 | a | "} {
		_, err := ParseRecord(line)
		assert.Error(t, err, "line %q", line)
	}
}

func TestReadMissingAndMalformed(t *testing.T) {
	fs := afero.NewMemMapFs()

	records, err := Read(fs, "nope.txt")
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, afero.WriteFile(fs, "bad.txt", []byte("1 | a | id\n\nnot-a-record\n"), 0644))
	_, err = Read(fs, "bad.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestOpenAppendsAndTruncates(t *testing.T) {
	fs := afero.NewMemMapFs()
	for i := 0; i < 2; i++ {
		l, err := Open(fs, "r.txt", false)
		require.NoError(t, err)
		require.NoError(t, l.Append(models.RetryRecord{Seq: i, NodeID: "id"}))
		require.NoError(t, l.Close())
	}
	records, err := Read(fs, "r.txt")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	l, err := Open(fs, "r.txt", true)
	require.NoError(t, err)
	require.NoError(t, l.Close())
	records, err = Read(fs, "r.txt")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRewrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "r.txt", []byte("1 | a | x\n2 | b | y\n"), 0644))

	keep := []models.RetryRecord{{Seq: 2, Path: []string{"b"}, NodeID: "y"}}
	require.NoError(t, Rewrite(fs, "r.txt", keep))

	got, err := Read(fs, "r.txt")
	require.NoError(t, err)
	assert.Equal(t, keep, got)

	exists, _ := afero.Exists(fs, "r.txt.tmp")
	assert.False(t, exists)
}

func TestConcurrentAppendsKeepWholeLines(t *testing.T) {
	fs := afero.NewMemMapFs()
	l, err := Open(fs, "r.txt", true)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, l.Append(models.RetryRecord{Seq: i, Path: []string{fmt.Sprintf("dir%d", i)}, NodeID: "id"}))
		}(i)
	}
	wg.Wait()
	require.NoError(t, l.Close())

	got, err := Read(fs, "r.txt")
	require.NoError(t, err)
	assert.Len(t, got, 40)
}

func TestShareLogBackup(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "share/share_url.txt", []byte("1 | old | https://pan.quark.cn/s/old\n"), 0644))

	s, err := CreateShareLog(fs, "share/share_url.txt", "share/share_url_backup.txt")
	require.NoError(t, err)
	require.NoError(t, s.Append(models.ShareRecord{Seq: 1, Path: []string{"A", "B"}, URL: "https://pan.quark.cn/s/new?pwd=ab12"}))
	require.NoError(t, s.Close())

	backup, err := afero.ReadFile(fs, "share/share_url_backup.txt")
	require.NoError(t, err)
	assert.Equal(t, "1 | old | https://pan.quark.cn/s/old\n", string(backup))

	current, err := afero.ReadFile(fs, "share/share_url.txt")
	require.NoError(t, err)
	assert.Equal(t, "1 | A | B | https://pan.quark.cn/s/new?pwd=ab12\n", string(current))

	r, err := ParseShareRecord(string(current))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, r.Path)
}
