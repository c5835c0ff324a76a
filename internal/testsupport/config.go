package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"winivox/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Storage uses the local backend and the queue lives in memory unless an
// option says otherwise; provider credentials are empty.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.TempDir = filepath.Join(base, "tmp")
	cfgVal.Queue.Backend = config.QueueBackendMemory
	cfgVal.Queue.DequeueTimeout = 1
	cfgVal.Queue.PollIntervalMillis = 10
	cfgVal.Queue.ErrorPause = 0
	cfgVal.Storage.Backend = config.StorageBackendLocal
	cfgVal.Storage.LocalRoot = filepath.Join(base, "objects")
	cfgVal.OpenAI.APIKey = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithOpenAI points provider clients at baseURL with a dummy key.
func WithOpenAI(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.OpenAI.APIKey = "test-key"
		b.cfg.OpenAI.BaseURL = baseURL
		b.cfg.OpenAI.RetryAttempts = 1
	}
}

// WithQueueBackend overrides the work queue backend.
func WithQueueBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.Backend = backend
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed:
// the ffmpeg stub copies its -i input to the final argument and ffprobe
// reports a 48000 Hz stream.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, []byte(stubScript(name)), 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		PrependPath(b.t, binDir)
	}
}

// WithFailingBinaries installs stubs that always exit non-zero.
func WithFailingBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "failbin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		PrependPath(b.t, binDir)
	}
}

// PrependPath puts dir in front of PATH for the duration of the test.
func PrependPath(t testing.TB, dir string) {
	t.Helper()
	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

func stubScript(name string) string {
	switch name {
	case "ffmpeg":
		return ffmpegStub
	case "ffprobe":
		return "#!/bin/sh\necho 48000\n"
	default:
		return "#!/bin/sh\nexit 0\n"
	}
}

// ffmpegStub records its arguments next to the output file and copies the
// input so callers see a real output.
const ffmpegStub = `#!/bin/sh
in=""
prev=""
last=""
for arg in "$@"; do
  if [ "$prev" = "-i" ]; then in="$arg"; fi
  prev="$arg"
  last="$arg"
done
[ -n "$in" ] || exit 2
printf '%s\n' "$*" > "$last.args"
cp "$in" "$last"
`

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
