package modhost

// builtinPackages are the pure-script packages resolvable through
// mw.loadPackage without touching the article store. Anything else is
// looked up in the Module namespace.
var builtinPackages = map[string]string{
	"libraryUtil": libraryUtilSrc,
	"strict":      strictSrc,
	"bit32":       bit32Src,
	"ustring":     ustringShimSrc,
	"package":     packageShimSrc,
}

const libraryUtilSrc = `
local libraryUtil = {}

function libraryUtil.checkType(name, argIdx, arg, expectType, nilOk)
	if arg == nil and nilOk then
		return
	end
	if type(arg) ~= expectType then
		error(string.format(
			"bad argument #%d to '%s' (%s expected, got %s)",
			argIdx, name, expectType, type(arg)
		), 3)
	end
end

function libraryUtil.checkTypeMulti(name, argIdx, arg, expectTypes)
	local argType = type(arg)
	for _, expectType in ipairs(expectTypes) do
		if argType == expectType then
			return
		end
	end
	error(string.format(
		"bad argument #%d to '%s' (%s expected, got %s)",
		argIdx, name, table.concat(expectTypes, " or "), argType
	), 3)
end

function libraryUtil.checkTypeForIndex(index, value, expectType)
	if type(value) ~= expectType then
		error(string.format(
			"value for index '%s' must be %s, %s given",
			tostring(index), expectType, type(value)
		), 3)
	end
end

function libraryUtil.checkTypeForNamedArg(name, argName, arg, expectType, nilOk)
	if arg == nil and nilOk then
		return
	end
	if type(arg) ~= expectType then
		error(string.format(
			"bad named argument %s to '%s' (%s expected, got %s)",
			argName, name, expectType, type(arg)
		), 3)
	end
end

function libraryUtil.makeCheckSelfFunction(libraryName, varName, selfObj, selfObjDesc)
	return function(self, method)
		if self ~= selfObj then
			error(string.format(
				"%s: invalid %s. Did you call %s with a dot instead of a colon, i.e. " ..
				"%s.%s() instead of %s:%s()?",
				libraryName, selfObjDesc, method, varName, method, varName, method
			), 3)
		end
	end
end

return libraryUtil
`

const strictSrc = `
-- Forbids reading or writing undeclared global variables from within
-- module chunks, surfacing typos as errors instead of nils.
local mt = getmetatable(_G)
if mt == nil then
	mt = {}
	setmetatable(_G, mt)
end

mt.__declared = {}

mt.__newindex = function(t, n, v)
	if not mt.__declared[n] then
		local info = debug and debug.getinfo and debug.getinfo(2, "S")
		local what = info and info.what or "C"
		if what ~= "main" and what ~= "C" then
			error("assign to undeclared variable '" .. tostring(n) .. "'", 2)
		end
		mt.__declared[n] = true
	end
	rawset(t, n, v)
end

mt.__index = function(t, n)
	if not mt.__declared[n] then
		error("variable '" .. tostring(n) .. "' is not declared", 2)
	end
	return rawget(t, n)
end

return mt
`

const bit32Src = `
-- 32-bit bitwise operations implemented arithmetically, for engines
-- without native bit operators.
local bit32 = {}

local MOD = 2^32

local function trim(n)
	return n % MOD
end

function bit32.bnot(x)
	return trim(-1 - x)
end

local function bitop(a, b, oper)
	local r, m = 0, 1
	a, b = trim(a), trim(b)
	for _ = 1, 32 do
		local abit, bbit = a % 2, b % 2
		local set
		if oper == "and" then
			set = abit == 1 and bbit == 1
		elseif oper == "or" then
			set = abit == 1 or bbit == 1
		else
			set = abit ~= bbit
		end
		if set then
			r = r + m
		end
		a, b = (a - abit) / 2, (b - bbit) / 2
		m = m * 2
	end
	return r
end

function bit32.band(a, b, ...)
	local r = bitop(a, b, "and")
	for _, v in ipairs({...}) do
		r = bitop(r, v, "and")
	end
	return r
end

function bit32.bor(a, b, ...)
	local r = bitop(a, b, "or")
	for _, v in ipairs({...}) do
		r = bitop(r, v, "or")
	end
	return r
end

function bit32.bxor(a, b, ...)
	local r = bitop(a, b, "xor")
	for _, v in ipairs({...}) do
		r = bitop(r, v, "xor")
	end
	return r
end

function bit32.lshift(x, disp)
	if disp >= 32 then return 0 end
	return trim(trim(x) * 2^disp)
end

function bit32.rshift(x, disp)
	if disp >= 32 then return 0 end
	return math.floor(trim(x) / 2^disp)
end

function bit32.arshift(x, disp)
	x = trim(x)
	if disp >= 32 then
		return x >= 2^31 and trim(-1) or 0
	end
	local r = math.floor(x / 2^disp)
	if x >= 2^31 then
		r = r + trim(-1 * 2^(32 - disp))
	end
	return trim(r)
end

function bit32.extract(n, field, width)
	width = width or 1
	return math.floor(trim(n) / 2^field) % 2^width
end

return bit32
`

const ustringShimSrc = `
-- The heavy lifting lives in the host's mw.ustring implementation; this
-- package exists so 'require'-style loads resolve the same name.
return mw.ustring
`

const packageShimSrc = `
return package
`
