package shader_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/renderer/shader"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/rhi/recorder"
	"github.com/Carmen-Shannon/prism/engine/scene"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T, dev *recorder.Device, opts ...shader.CacheBuilderOption) *shader.Cache {
	t.Helper()
	opts = append([]shader.CacheBuilderOption{
		shader.WithLogger(logger.Discard()),
		shader.WithInclude("scene", scene.GPUSceneUniformSource, "SceneUniform"),
	}, opts...)
	c, err := shader.NewCache(dev, opts...)
	require.NoError(t, err)
	return c
}

func TestLoadCachesModules(t *testing.T) {
	dev := recorder.New()
	c := newCache(t, dev)

	a, err := c.Load("depth")
	require.NoError(t, err)
	b, err := c.Load("depth")
	require.NoError(t, err)
	assert.Same(t, a, b)

	src, ok := c.Processed("depth")
	require.True(t, ok)
	assert.Contains(t, src, "struct SceneUniform")
	assert.Contains(t, src, "fn vs_main")
	assert.NotContains(t, src, "@prism:")
	assert.Equal(t, src, a.(*recorder.ShaderModule).Source)
}

func TestLoadEveryEmbeddedShader(t *testing.T) {
	c := newCache(t, recorder.New())
	names := shader.Names()
	require.NotEmpty(t, names)
	for _, name := range names {
		_, err := c.Load(name)
		assert.NoError(t, err, name)
	}
}

func TestDeclarations(t *testing.T) {
	c := newCache(t, recorder.New())
	_, ok := c.Declarations("cull")
	assert.False(t, ok)

	_, err := c.Load("cull")
	require.NoError(t, err)
	decls, ok := c.Declarations("cull")
	require.True(t, ok)

	got := make(map[int]string)
	for _, d := range decls {
		got[d.Binding] = d.AddressSpace + " " + d.Var
	}
	assert.Equal(t, map[int]string{
		1: "read commands",
		2: "read instances",
		3: "read mesh_instances",
		4: "read_write culled",
	}, got)
}

func TestLoadUnknownShader(t *testing.T) {
	c := newCache(t, recorder.New())
	_, err := c.Load("does_not_exist")
	assert.ErrorIs(t, err, shader.ErrShaderNotFound)
}

func TestLoadWithoutSceneInclude(t *testing.T) {
	c, err := shader.NewCache(recorder.New(), shader.WithLogger(logger.Discard()))
	require.NoError(t, err)
	_, err = c.Load("forward")
	assert.ErrorIs(t, err, shader.ErrUnknownInclude)

	// Shaders that do not touch the scene uniform still compile.
	_, err = c.Load("gamma")
	assert.NoError(t, err)
}

func TestInvalidateRecompiles(t *testing.T) {
	dev := recorder.New()
	bin := rhi.NewRecycleBin(dev, 2)
	c := newCache(t, dev, shader.WithRecycleBin(bin))

	first, err := c.Load("gamma")
	require.NoError(t, err)
	gen := c.Generation()

	c.Invalidate("gamma")
	assert.Equal(t, gen+1, c.Generation())

	second, err := c.Load("gamma")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 1, bin.Len())

	// Invalidating something never compiled is not a change.
	c.Invalidate("fxaa")
	assert.Equal(t, gen+1, c.Generation())
}

func TestRegisterOverridesEmbedded(t *testing.T) {
	c := newCache(t, recorder.New())
	_, err := c.Load("gamma")
	require.NoError(t, err)

	c.Register("gamma", "//@prism:include fullscreen\n@fragment fn fs_main() -> @location(0) vec4<f32> { return vec4<f32>(1.0); }\n")
	m, err := c.Load("gamma")
	require.NoError(t, err)
	assert.Contains(t, m.(*recorder.ShaderModule).Source, "return vec4<f32>(1.0);")
}

func TestIncludeInvalidatesAll(t *testing.T) {
	c := newCache(t, recorder.New())
	_, err := c.Load("gamma")
	require.NoError(t, err)
	_, err = c.Load("fxaa")
	require.NoError(t, err)
	gen := c.Generation()

	c.Include("extra", "const EXTRA: u32 = 1u;\n", "")
	assert.Equal(t, gen+1, c.Generation())
	_, ok := c.Processed("gamma")
	assert.False(t, ok)
}

func TestDirOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gamma.wgsl"), []byte("// from disk\n"), 0o644))

	c := newCache(t, recorder.New(), shader.WithDir(dir))
	src, err := c.Source("gamma")
	require.NoError(t, err)
	assert.Equal(t, "// from disk\n", src)

	src, err = c.Source("fxaa")
	require.NoError(t, err)
	assert.True(t, strings.Contains(src, "FxaaParams"))
}

func TestNewCacheRejectsMissingDir(t *testing.T) {
	_, err := shader.NewCache(recorder.New(), shader.WithDir(filepath.Join(t.TempDir(), "missing")))
	assert.Error(t, err)
}

func TestWatchInvalidatesChangedShader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gamma.wgsl")
	embedded, err := newCache(t, recorder.New()).Source("gamma")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(embedded), 0o644))

	c := newCache(t, recorder.New(), shader.WithDir(dir))
	_, err = c.Load("gamma")
	require.NoError(t, err)
	gen := c.Generation()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	// The watcher may not be registered yet; keep touching the file until it reacts.
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(embedded+"\n"), 0o644)
		return c.Generation() > gen
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatchWithoutDir(t *testing.T) {
	c := newCache(t, recorder.New())
	assert.Error(t, c.Watch(context.Background()))
}

func TestValidateAcceptsComputeShader(t *testing.T) {
	src := `
@group(0) @binding(0) var<storage, read_write> values: array<u32>;

@compute @workgroup_size(64)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
    values[id.x] = values[id.x] * 2u;
}
`
	if err := shader.Validate(src); err != nil {
		if shader.IsValidatorLimitation(err) {
			t.Skipf("validator limitation: %v", err)
		}
		t.Fatalf("naga rejected a valid shader: %v", err)
	}
}

func TestValidateRejectsBrokenSource(t *testing.T) {
	err := shader.Validate("fn broken( {")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shader.ErrInvalidShader), "naga errors are marked ErrInvalidShader")
}
