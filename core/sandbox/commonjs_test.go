package sandbox

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapCommonJSModuleExportsFunction(t *testing.T) {
	vm := goja.New()
	_, err := vm.RunString(WrapCommonJS(`module.exports = function(req, res) { return "a"; };`))
	require.NoError(t, err)

	fn, ok := goja.AssertFunction(vm.Get("handler"))
	require.True(t, ok)
	v, err := fn(goja.Undefined())
	require.NoError(t, err)
	assert.Equal(t, "a", v.String())
}

func TestWrapCommonJSExportsDefault(t *testing.T) {
	vm := goja.New()
	_, err := vm.RunString(WrapCommonJS(`exports.default = function(req, res) { return "b"; };`))
	require.NoError(t, err)

	fn, ok := goja.AssertFunction(vm.Get("handler"))
	require.True(t, ok)
	v, err := fn(goja.Undefined())
	require.NoError(t, err)
	assert.Equal(t, "b", v.String())
}

func TestWrapCommonJSBareGlobalFunction(t *testing.T) {
	vm := goja.New()
	_, err := vm.RunString(WrapCommonJS(`function handler(req, res) { return "c"; }`))
	require.NoError(t, err)

	fn, ok := goja.AssertFunction(vm.Get("handler"))
	require.True(t, ok)
	v, err := fn(goja.Undefined())
	require.NoError(t, err)
	assert.Equal(t, "c", v.String())
}
