package cmd

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ehound/internal/app"
	"github.com/JakeFAU/ehound/internal/config"
	"github.com/JakeFAU/ehound/internal/crawlerr"
	"github.com/JakeFAU/ehound/internal/fetcher"
)

// These tests swap the package-level newApp factory and must not run in parallel.

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2)), nil))
	return buf.Bytes()
}

func fakeSite(t *testing.T) fetcher.Fetcher {
	t.Helper()
	img := string(jpegBytes(t))
	pages := map[string]string{
		"https://site.test/solo": `<html><body><ul>
<li><a href="/solo/chapter-1">Chapter 1</a></li>
<li><a href="/solo/chapter-2">Chapter 2</a></li></ul></body></html>`,
		"https://site.test/solo/chapter-1": `<html><head><title>Solo Leveling Chapter 1</title></head>
<body><div class="reader"><img src="https://img.site.test/1.jpg"></div><a href="/solo/chapter-2">Next</a></body></html>`,
		"https://site.test/solo/chapter-2": `<html><head><title>Solo Leveling Chapter 2</title></head>
<body><div class="reader"><img src="https://img.site.test/2.jpg"></div></body></html>`,
		"https://img.site.test/1.jpg": img,
		"https://img.site.test/2.jpg": img,
	}
	return fetcher.Func(func(_ context.Context, req fetcher.Request) (fetcher.Response, error) {
		body, ok := pages[req.URL]
		if !ok {
			return fetcher.Response{}, crawlerr.NewNetworkError(req.URL, http.StatusNotFound, errors.New("not found"))
		}
		headers := http.Header{}
		if strings.HasSuffix(req.URL, ".jpg") {
			headers.Set("Content-Type", "image/jpeg")
		}
		return fetcher.Response{URL: req.URL, StatusCode: http.StatusOK, Headers: headers, Body: []byte(body)}, nil
	})
}

// setup writes a config file into a temp dir and points newApp at the fake site.
func setup(t *testing.T) (cfgPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	cfgPath = filepath.Join(dir, "ehound.yaml")
	yaml := `crawler:
  interval: 1ms
http:
  max_retries: 0
cache:
  root: ` + filepath.Join(dir, "cache") + `
state:
  downloader_path: ` + filepath.Join(dir, "state", "downloader.json") + `
  retriever_path: ` + filepath.Join(dir, "state", "retriever.json") + `
  library_path: ` + filepath.Join(dir, "state", "library.json") + `
export:
  dir: ` + filepath.Join(dir, "epub") + `
logging:
  development: false
  level: error
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))

	site := fakeSite(t)
	prev := newApp
	newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger, opts app.Options) (*app.App, error) {
		opts.Fetcher = site
		return app.New(ctx, cfg, zap.NewNop(), opts)
	}
	t.Cleanup(func() { newApp = prev })
	return cfgPath, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), args, &out, &errOut)
	return out.String(), err
}

func TestAddThenBrowseAcrossInvocations(t *testing.T) {
	cfg, _ := setup(t)

	out, err := execute(t, "--config", cfg, "add", "https://site.test/solo/chapter-1")
	require.NoError(t, err)
	assert.Equal(t, "Archived 2 chapters of \"Solo Leveling\"\n", out)

	// A fresh invocation restores the saved library.
	out, err = execute(t, "--config", cfg, "library", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Solo Leveling")
	assert.Contains(t, out, "image")

	out, err = execute(t, "--config", cfg, "library", "show", "Solo Leveling")
	require.NoError(t, err)
	assert.Contains(t, out, "index: https://site.test/solo")
	assert.Contains(t, out, "https://site.test/solo/chapter-2")

	out, err = execute(t, "--config", cfg, "library", "manifest")
	require.NoError(t, err)
	assert.Contains(t, out, "name: Solo Leveling")
	assert.Contains(t, out, "kind: image")
}

func TestAddNoSaveLeavesNoState(t *testing.T) {
	cfg, dir := setup(t)

	_, err := execute(t, "--config", cfg, "add", "--no-save", "--name", "Solo", "https://site.test/solo/chapter-1")
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "state", "library.json"))
	assert.ErrorIs(t, statErr, os.ErrNotExist)

	_, err = execute(t, "--config", cfg, "load")
	assert.Error(t, err)
}

func TestLibrarySeekAndRemove(t *testing.T) {
	cfg, _ := setup(t)
	_, err := execute(t, "--config", cfg, "add", "--name", "Solo", "https://site.test/solo/chapter-1")
	require.NoError(t, err)

	out, err := execute(t, "--config", cfg, "library", "seek", "Solo", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Solo chapter 2: https://site.test/solo/chapter-2 (1 items)")

	_, err = execute(t, "--config", cfg, "library", "seek", "Solo", "9")
	require.ErrorIs(t, err, crawlerr.ErrNotFound)

	_, err = execute(t, "--config", cfg, "library", "seek", "Solo", "two")
	var perr *crawlerr.ParseError
	require.ErrorAs(t, err, &perr)

	require.NoError(t, runErr(execute(t, "--config", cfg, "library", "remove", "Solo")))
	out, err = execute(t, "--config", cfg, "load")
	require.NoError(t, err)
	assert.Equal(t, "Loaded 0 books\n", out)

	_, err = execute(t, "--config", cfg, "library", "remove", "Solo")
	assert.ErrorIs(t, err, crawlerr.ErrNotFound)
}

func TestRefreshWithEmptyLibrary(t *testing.T) {
	cfg, _ := setup(t)

	out, err := execute(t, "--config", cfg, "refresh", "--no-save")

	require.NoError(t, err)
	assert.Equal(t, "Archived 0 chapters across 0 books\n", out)
}

func TestHeadersCommandsPersist(t *testing.T) {
	cfg, _ := setup(t)

	require.NoError(t, runErr(execute(t, "--config", cfg, "headers", "set", "Site.Test", "Referer", "https://site.test/")))
	require.NoError(t, runErr(execute(t, "--config", cfg, "headers", "group", "add", "7", "User-Agent", "reader")))
	require.NoError(t, runErr(execute(t, "--config", cfg, "headers", "site", "add", "site.test", "7")))

	out, err := execute(t, "--config", cfg, "headers", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "site.test  Referer: https://site.test/")
	assert.Contains(t, out, "User-Agent: reader")

	require.NoError(t, runErr(execute(t, "--config", cfg, "headers", "unset", "site.test", "Referer")))
	out, err = execute(t, "--config", cfg, "headers", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "https://site.test/")

	_, err = execute(t, "--config", cfg, "headers", "group", "add", "seven", "X", "y")
	assert.Error(t, err)
}

func TestExportWritesEPUB(t *testing.T) {
	cfg, dir := setup(t)
	_, err := execute(t, "--config", cfg, "add", "--name", "Solo", "https://site.test/solo/chapter-1")
	require.NoError(t, err)

	out, err := execute(t, "--config", cfg, "export", "Solo")

	require.NoError(t, err)
	path := strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(dir, "epub", "Solo.epub"), path)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	_, err = execute(t, "--config", cfg, "export", "Missing")
	assert.ErrorIs(t, err, crawlerr.ErrNotFound)
}

func TestCatalogRequiresDSN(t *testing.T) {
	cfg, _ := setup(t)

	_, err := execute(t, "--config", cfg, "catalog", "Solo")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog.dsn is not configured")
}

func TestStartupFailures(t *testing.T) {
	t.Run("missing config file", func(t *testing.T) {
		_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "library", "list")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load config")
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg, _ := setup(t)
		_, err := execute(t, "--config", cfg, "--log-level", "loud", "library", "list")
		assert.Error(t, err)
	})

	t.Run("factory error", func(t *testing.T) {
		cfg, _ := setup(t)
		newApp = func(context.Context, config.Config, *zap.Logger, app.Options) (*app.App, error) {
			return nil, errors.New("boom")
		}
		_, err := execute(t, "--config", cfg, "library", "list")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize application services: boom")
	})
}

func TestResolveAppWithoutPreRun(t *testing.T) {
	cmd := newLibraryListCmd()
	cmd.SetContext(context.Background())

	_, err := resolveApp(cmd)

	assert.EqualError(t, err, "application services are not initialized")
}

func runErr(_ string, err error) error { return err }
