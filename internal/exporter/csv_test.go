package exporter

import (
	"bytes"
	"encoding/csv"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakudev/auction-seller-scraper/internal/models"
)

func sampleSellers() []models.Seller {
	return []models.Seller{
		{Name: "アニメの店", URL: "https://example.jp/seller/a", Classification: models.ClassificationAnime},
		{Name: "時計屋", URL: "https://example.jp/seller/b", Classification: models.ClassificationNotAnime},
		{Name: "不運な店", URL: "https://example.jp/seller/c", Classification: models.ClassificationUnknown},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	require.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}), "file must start with a UTF-8 BOM")

	records, err := csv.NewReader(bytes.NewReader(data[3:])).ReadAll()
	require.NoError(t, err)
	return records
}

func TestExportIntermediateMarksEveryRowUndecided(t *testing.T) {
	e := NewCSVExporter(t.TempDir())

	path, err := e.ExportIntermediate(sampleSellers())
	require.NoError(t, err)

	records := readCSV(t, path)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"セラー名", "セラーページURL", "二次創作"}, records[0])
	for _, row := range records[1:] {
		assert.Equal(t, "未判定", row[2])
	}
}

func TestExportFinalUsesTriStateLabels(t *testing.T) {
	e := NewCSVExporter(t.TempDir())

	path, err := e.ExportFinal(sampleSellers())
	require.NoError(t, err)

	records := readCSV(t, path)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"アニメの店", "https://example.jp/seller/a", "はい"}, records[1])
	assert.Equal(t, []string{"時計屋", "https://example.jp/seller/b", "いいえ"}, records[2])
	assert.Equal(t, []string{"不運な店", "https://example.jp/seller/c", "未判定"}, records[3])
}

func TestExportFinalFileNameHasSuffix(t *testing.T) {
	e := NewCSVExporter(t.TempDir())

	path, err := e.ExportFinal(nil)
	require.NoError(t, err)
	assert.Regexp(t, `sellers_\d{8}_\d{6}_final\.csv$`, path)
}

func TestExportIntermediateFileName(t *testing.T) {
	e := NewCSVExporter(t.TempDir())

	path, err := e.ExportIntermediate(nil)
	require.NoError(t, err)
	assert.Regexp(t, `sellers_\d{8}_\d{6}\.csv$`, path)
}

func TestExportEmptySellersWritesHeaderOnly(t *testing.T) {
	e := NewCSVExporter(t.TempDir())

	path, err := e.ExportIntermediate(nil)
	require.NoError(t, err)

	records := readCSV(t, path)
	assert.Len(t, records, 1)
}

func TestExportCreatesOutputDir(t *testing.T) {
	dir := t.TempDir() + "/nested/output"
	e := NewCSVExporter(dir)

	_, err := e.ExportFinal(sampleSellers())
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestExportFailureIsWrapped(t *testing.T) {
	e := NewCSVExporter("/proc/no-such-dir")

	_, err := e.ExportFinal(sampleSellers())
	var expErr *ExportError
	require.ErrorAs(t, err, &expErr)
}
