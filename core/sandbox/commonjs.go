package sandbox

// WrapCommonJS wraps a function version's index.js source in a CommonJS
// module shim: a version's top-level export must be a function
// (req, res) -> void | Promise<void>, and this binds
// whatever ends up on module.exports (or exports.default, or a bare
// `function handler` left as a global) to the fixed entryFnName symbol the
// engine looks up after running the program.
//
// User code may use any of the three common shapes:
//
//	module.exports = (req, res) => { ... }
//	exports.default = function(req, res) { ... }
//	function handler(req, res) { ... }   // already a global, left untouched
func WrapCommonJS(source string) string {
	return "(function(){\n" +
		"var module = { exports: {} };\n" +
		"var exports = module.exports;\n" +
		source + "\n" +
		"var __exported = (typeof module.exports === 'function') ? module.exports :\n" +
		"  (typeof module.exports === 'object' && typeof module.exports.default === 'function') ? module.exports.default :\n" +
		"  (typeof exports === 'function') ? exports :\n" +
		"  (typeof handler === 'function') ? handler : undefined;\n" +
		"if (__exported) { globalThis.handler = __exported; }\n" +
		"})();\n"
}
