// Package cryptoapi installs a require("crypto")-shaped module layering
// golang.org/x/crypto primitives (pbkdf2, scrypt) and Go's stdlib crypto/*
// under Node's crypto surface: hashing/HMAC, AES-CBC/GCM ciphers,
// RSA/EC/Ed25519 keygen/sign/verify, and the constant-time/random helpers
// user code relies on for auth flows.
package cryptoapi

import (
	gocrypto "crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"hash"
	"math/big"
	"strings"

	"github.com/dop251/goja"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"

	"github.com/faasforge/faascore/core/apierr"
	"github.com/faasforge/faascore/core/sandbox"
	"github.com/faasforge/faascore/core/sandbox/hostapi/bufferapi"
)

func Install(vm *goja.Runtime, inv *sandbox.Invocation) error {
	obj := vm.NewObject()

	_ = obj.Set("randomUUID", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(randomUUID())
	})

	_ = obj.Set("randomBytes", func(call goja.FunctionCall) goja.Value {
		n := intArg(call, 0, 16)
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			panic(vm.ToValue(apierr.NewInternal(err)))
		}
		return bufferapi.NewBuffer(vm, buf)
	})

	_ = obj.Set("randomInt", func(call goja.FunctionCall) goja.Value {
		var min, max int64
		if len(call.Arguments) == 1 {
			min, max = 0, call.Arguments[0].ToInteger()
		} else {
			min, max = call.Arguments[0].ToInteger(), call.Arguments[1].ToInteger()
		}
		if max <= min {
			panic(vm.ToValue(apierr.NewUserError("randomInt: max must be greater than min")))
		}
		n, err := rand.Int(rand.Reader, big.NewInt(max-min))
		if err != nil {
			panic(vm.ToValue(apierr.NewInternal(err)))
		}
		return vm.ToValue(min + n.Int64())
	})

	_ = obj.Set("timingSafeEqual", func(call goja.FunctionCall) goja.Value {
		a := bytesArg(call, 0)
		b := bytesArg(call, 1)
		if len(a) != len(b) {
			panic(vm.ToValue(apierr.NewUserError("timingSafeEqual: input buffers must have the same byte length")))
		}
		return vm.ToValue(subtle.ConstantTimeCompare(a, b) == 1)
	})

	_ = obj.Set("getHashes", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue([]string{"md5", "sha1", "sha224", "sha256", "sha384", "sha512"})
	})

	_ = obj.Set("getCiphers", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue([]string{
			"aes-128-cbc", "aes-192-cbc", "aes-256-cbc",
			"aes-128-gcm", "aes-192-gcm", "aes-256-gcm",
		})
	})

	_ = obj.Set("createHash", func(call goja.FunctionCall) goja.Value {
		algo := "sha256"
		if len(call.Arguments) > 0 {
			algo = call.Arguments[0].String()
		}
		h, err := newHash(algo)
		if err != nil {
			panic(vm.ToValue(err))
		}
		return hashObject(vm, h)
	})

	_ = obj.Set("createHmac", func(call goja.FunctionCall) goja.Value {
		algo := "sha256"
		if len(call.Arguments) > 0 {
			algo = call.Arguments[0].String()
		}
		key := bytesArg(call, 1)
		ctor := hashCtor(algo)
		if ctor == nil {
			panic(vm.ToValue(apierr.NewUserError("unsupported hmac algorithm: " + algo)))
		}
		return hashObject(vm, hmac.New(ctor, key))
	})

	_ = obj.Set("pbkdf2Sync", func(call goja.FunctionCall) goja.Value {
		password := bytesArg(call, 0)
		salt := bytesArg(call, 1)
		iterations := intArg(call, 2, 1)
		keylen := intArg(call, 3, 32)
		ctor := hashCtor(digestArg(call, 4, "sha256"))
		if ctor == nil {
			ctor = sha256.New
		}
		return bufferapi.NewBuffer(vm, pbkdf2.Key(password, salt, iterations, keylen, ctor))
	})

	_ = obj.Set("pbkdf2", func(call goja.FunctionCall) goja.Value {
		password := bytesArg(call, 0)
		salt := bytesArg(call, 1)
		iterations := intArg(call, 2, 1)
		keylen := intArg(call, 3, 32)
		digest, cbIdx := "sha256", 4
		if s, ok := argString(call, 4); ok {
			digest = s
			cbIdx = 5
		}
		ctor := hashCtor(digest)
		if ctor == nil {
			ctor = sha256.New
		}
		callback, _ := goja.AssertFunction(argAt(call, cbIdx))
		inv.Loop.PostMacrotask(func() {
			derived := pbkdf2.Key(password, salt, iterations, keylen, ctor)
			if callback != nil {
				_, _ = callback(goja.Undefined(), goja.Null(), bufferapi.NewBuffer(vm, derived))
			}
		})
		return goja.Undefined()
	})

	_ = obj.Set("scryptSync", func(call goja.FunctionCall) goja.Value {
		password := bytesArg(call, 0)
		salt := bytesArg(call, 1)
		keylen := intArg(call, 2, 32)
		derived, err := scrypt.Key(password, salt, 1<<14, 8, 1, keylen)
		if err != nil {
			panic(vm.ToValue(apierr.NewInternal(err)))
		}
		return bufferapi.NewBuffer(vm, derived)
	})

	_ = obj.Set("scrypt", func(call goja.FunctionCall) goja.Value {
		password := bytesArg(call, 0)
		salt := bytesArg(call, 1)
		keylen := intArg(call, 2, 32)
		callback, _ := goja.AssertFunction(argAt(call, len(call.Arguments)-1))
		inv.Loop.PostMacrotask(func() {
			derived, err := scrypt.Key(password, salt, 1<<14, 8, 1, keylen)
			if callback == nil {
				return
			}
			if err != nil {
				_, _ = callback(goja.Undefined(), vm.ToValue(apierr.NewInternal(err).Error()))
				return
			}
			_, _ = callback(goja.Undefined(), goja.Null(), bufferapi.NewBuffer(vm, derived))
		})
		return goja.Undefined()
	})

	_ = obj.Set("createCipheriv", func(call goja.FunctionCall) goja.Value {
		return newCipher(vm, arg(call, 0), bytesArg(call, 1), bytesArg(call, 2), false)
	})
	_ = obj.Set("createDecipheriv", func(call goja.FunctionCall) goja.Value {
		return newCipher(vm, arg(call, 0), bytesArg(call, 1), bytesArg(call, 2), true)
	})

	_ = obj.Set("generateKeyPairSync", func(call goja.FunctionCall) goja.Value {
		return generateKeyPair(vm, arg(call, 0), optionsArg(call, 1))
	})

	_ = obj.Set("createSign", func(call goja.FunctionCall) goja.Value {
		return signObject(vm, arg(call, 0), false)
	})
	_ = obj.Set("createVerify", func(call goja.FunctionCall) goja.Value {
		return signObject(vm, arg(call, 0), true)
	})

	return vm.Set("crypto", obj)
}

func hashObject(vm *goja.Runtime, h hash.Hash) goja.Value {
	obj := vm.NewObject()
	_ = obj.Set("update", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 {
			_, _ = h.Write(bytesArg(call, 0))
		}
		return obj
	})
	_ = obj.Set("digest", func(call goja.FunctionCall) goja.Value {
		encoding := "hex"
		if len(call.Arguments) > 0 {
			encoding = call.Arguments[0].String()
		}
		sum := h.Sum(nil)
		if encoding == "" {
			return bufferapi.NewBuffer(vm, sum)
		}
		return vm.ToValue(encodeDigest(sum, encoding))
	})
	return obj
}

func encodeDigest(sum []byte, encoding string) string {
	switch encoding {
	case "base64":
		return base64.StdEncoding.EncodeToString(sum)
	default:
		return hex.EncodeToString(sum)
	}
}

func newHash(algo string) (hash.Hash, error) {
	ctor := hashCtor(algo)
	if ctor == nil {
		return nil, apierr.NewUserError("unsupported hash algorithm: " + algo)
	}
	return ctor(), nil
}

func hashCtor(algo string) func() hash.Hash {
	switch strings.ToLower(algo) {
	case "md5":
		return md5.New
	case "sha1":
		return sha1.New
	case "sha224":
		return sha256.New224
	case "sha256":
		return sha256.New
	case "sha384":
		return sha512.New384
	case "sha512":
		return sha512.New
	default:
		return nil
	}
}

// keySize returns the key length AES-*-cbc/gcm expects, in bytes.
func keySize(algo string) (int, error) {
	switch algo {
	case "aes-128-cbc", "aes-128-gcm":
		return 16, nil
	case "aes-192-cbc", "aes-192-gcm":
		return 24, nil
	case "aes-256-cbc", "aes-256-gcm":
		return 32, nil
	default:
		return 0, apierr.NewUserError("unsupported cipher algorithm: " + algo)
	}
}

func isGCM(algo string) bool { return strings.HasSuffix(algo, "-gcm") }

// newCipher builds a Node-shaped Cipher/Decipher object: update() buffers
// plaintext/ciphertext, final() runs the actual AES transform so GCM can see
// the whole input before verifying its tag. GCM tag verification failure
// surfaces as apierr.AuthFailed, matching the auth_failed error kind.
func newCipher(vm *goja.Runtime, algo string, key, iv []byte, decrypt bool) *goja.Object {
	size, err := keySize(algo)
	if err != nil {
		panic(vm.ToValue(err))
	}
	if len(key) != size {
		panic(vm.ToValue(apierr.NewUserError(fmt.Sprintf("invalid key length for %s: want %d bytes, got %d", algo, size, len(key)))))
	}

	obj := vm.NewObject()
	var buf []byte
	var authTag []byte
	finalized := false

	_ = obj.Set("update", func(call goja.FunctionCall) goja.Value {
		buf = append(buf, bytesArg(call, 0)...)
		return bufferapi.NewBuffer(vm, nil)
	})
	_ = obj.Set("setAuthTag", func(call goja.FunctionCall) goja.Value {
		authTag = bytesArg(call, 0)
		return obj
	})
	_ = obj.Set("getAuthTag", func(call goja.FunctionCall) goja.Value {
		return bufferapi.NewBuffer(vm, authTag)
	})
	_ = obj.Set("final", func(call goja.FunctionCall) goja.Value {
		if finalized {
			panic(vm.ToValue(apierr.NewUserError("cipher already finalized")))
		}
		finalized = true

		block, err := aes.NewCipher(key)
		if err != nil {
			panic(vm.ToValue(apierr.NewInternal(err)))
		}

		if isGCM(algo) {
			gcm, err := cipher.NewGCM(block)
			if err != nil {
				panic(vm.ToValue(apierr.NewInternal(err)))
			}
			if decrypt {
				sealed := append(append([]byte(nil), buf...), authTag...)
				plain, err := gcm.Open(nil, iv, sealed, nil)
				if err != nil {
					panic(vm.ToValue(apierr.NewAuthFailed()))
				}
				return bufferapi.NewBuffer(vm, plain)
			}
			sealed := gcm.Seal(nil, iv, buf, nil)
			ciphertext := sealed[:len(sealed)-gcm.Overhead()]
			authTag = sealed[len(sealed)-gcm.Overhead():]
			return bufferapi.NewBuffer(vm, ciphertext)
		}

		if decrypt {
			if len(buf)%aes.BlockSize != 0 {
				panic(vm.ToValue(apierr.NewUserError("ciphertext is not a multiple of the AES block size")))
			}
			out := make([]byte, len(buf))
			cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, buf)
			unpadded, err := pkcs7Unpad(out)
			if err != nil {
				panic(vm.ToValue(apierr.NewUserError(err.Error())))
			}
			return bufferapi.NewBuffer(vm, unpadded)
		}
		padded := pkcs7Pad(buf, aes.BlockSize)
		out := make([]byte, len(padded))
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
		return bufferapi.NewBuffer(vm, out)
	})

	return obj
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(append([]byte(nil), data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("invalid padding: empty block")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}

// generateKeyPair builds an RSA/EC/Ed25519 keypair and returns it PEM-encoded
// (PKCS8 private, PKIX public), the shape createSign/createVerify/the other
// sandbox's TLS-facing code expects.
func generateKeyPair(vm *goja.Runtime, keyType string, opts map[string]any) goja.Value {
	switch keyType {
	case "rsa":
		modulusLength := optInt(opts, "modulusLength", 2048)
		priv, err := rsa.GenerateKey(rand.Reader, modulusLength)
		if err != nil {
			panic(vm.ToValue(apierr.NewInternal(err)))
		}
		return keyPairResult(vm, priv, &priv.PublicKey)
	case "ec":
		curve, err := ecCurve(optString(opts, "namedCurve", "prime256v1"))
		if err != nil {
			panic(vm.ToValue(err))
		}
		priv, err := ecdsa.GenerateKey(curve, rand.Reader)
		if err != nil {
			panic(vm.ToValue(apierr.NewInternal(err)))
		}
		return keyPairResult(vm, priv, &priv.PublicKey)
	case "ed25519":
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			panic(vm.ToValue(apierr.NewInternal(err)))
		}
		return keyPairResult(vm, priv, pub)
	default:
		panic(vm.ToValue(apierr.NewUserError("unsupported key type: " + keyType)))
	}
}

func keyPairResult(vm *goja.Runtime, priv, pub any) goja.Value {
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		panic(vm.ToValue(apierr.NewInternal(err)))
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		panic(vm.ToValue(apierr.NewInternal(err)))
	}
	result := vm.NewObject()
	_ = result.Set("publicKey", string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})))
	_ = result.Set("privateKey", string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})))
	return result
}

func ecCurve(name string) (elliptic.Curve, error) {
	switch name {
	case "prime256v1", "secp256r1", "P-256":
		return elliptic.P256(), nil
	case "secp384r1", "P-384":
		return elliptic.P384(), nil
	case "secp521r1", "P-521":
		return elliptic.P521(), nil
	default:
		return nil, apierr.NewUserError("unsupported named curve: " + name)
	}
}

// signObject implements createSign/createVerify: update() accumulates the
// message, then sign()/verify() hashes it (Ed25519 excepted, which signs the
// message directly) and dispatches on the parsed PEM key's concrete type.
func signObject(vm *goja.Runtime, algo string, verify bool) *goja.Object {
	obj := vm.NewObject()
	var data []byte

	_ = obj.Set("update", func(call goja.FunctionCall) goja.Value {
		data = append(data, bytesArg(call, 0)...)
		return obj
	})
	_ = obj.Set("end", func(call goja.FunctionCall) goja.Value { return obj })

	if verify {
		_ = obj.Set("verify", func(call goja.FunctionCall) goja.Value {
			ok, err := verifySignature(arg(call, 0), algo, data, bytesArg(call, 1))
			if err != nil {
				panic(vm.ToValue(err))
			}
			return vm.ToValue(ok)
		})
	} else {
		_ = obj.Set("sign", func(call goja.FunctionCall) goja.Value {
			sig, err := signData(arg(call, 0), algo, data)
			if err != nil {
				panic(vm.ToValue(err))
			}
			return bufferapi.NewBuffer(vm, sig)
		})
	}
	return obj
}

func signData(privPEM, algo string, data []byte) ([]byte, error) {
	key, err := parsePrivateKey(privPEM)
	if err != nil {
		return nil, err
	}
	switch k := key.(type) {
	case ed25519.PrivateKey:
		return ed25519.Sign(k, data), nil
	case *rsa.PrivateKey:
		h, digest, err := digestFor(algo, data)
		if err != nil {
			return nil, err
		}
		return rsa.SignPKCS1v15(rand.Reader, k, h, digest)
	case *ecdsa.PrivateKey:
		_, digest, err := digestFor(algo, data)
		if err != nil {
			return nil, err
		}
		return ecdsa.SignASN1(rand.Reader, k, digest)
	default:
		return nil, apierr.NewUserError("unsupported private key type")
	}
}

func verifySignature(pubPEM, algo string, data, sig []byte) (bool, error) {
	key, err := parsePublicKey(pubPEM)
	if err != nil {
		return false, err
	}
	switch k := key.(type) {
	case ed25519.PublicKey:
		return ed25519.Verify(k, data, sig), nil
	case *rsa.PublicKey:
		h, digest, err := digestFor(algo, data)
		if err != nil {
			return false, err
		}
		return rsa.VerifyPKCS1v15(k, h, digest, sig) == nil, nil
	case *ecdsa.PublicKey:
		_, digest, err := digestFor(algo, data)
		if err != nil {
			return false, err
		}
		return ecdsa.VerifyASN1(k, digest, sig), nil
	default:
		return false, apierr.NewUserError("unsupported public key type")
	}
}

func digestFor(algo string, data []byte) (gocrypto.Hash, []byte, error) {
	lower := strings.ToLower(algo)
	var h gocrypto.Hash
	var hasher func() hash.Hash
	switch {
	case strings.Contains(lower, "sha512"):
		h, hasher = gocrypto.SHA512, sha512.New
	case strings.Contains(lower, "sha384"):
		h, hasher = gocrypto.SHA384, sha512.New384
	case strings.Contains(lower, "sha224"):
		h, hasher = gocrypto.SHA224, sha256.New224
	case strings.Contains(lower, "sha256"):
		h, hasher = gocrypto.SHA256, sha256.New
	case strings.Contains(lower, "sha1"):
		h, hasher = gocrypto.SHA1, sha1.New
	default:
		return 0, nil, apierr.NewUserError("unsupported signature algorithm: " + algo)
	}
	sum := hasher()
	sum.Write(data)
	return h, sum.Sum(nil), nil
}

func parsePrivateKey(pemStr string) (any, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, apierr.NewUserError("invalid PEM private key")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, apierr.Wrap(apierr.UserError, "invalid private key", err)
	}
	return key, nil
}

func parsePublicKey(pemStr string) (any, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, apierr.NewUserError("invalid PEM public key")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, apierr.Wrap(apierr.UserError, "invalid public key", err)
	}
	return key, nil
}

func randomUUID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	buf[6] = (buf[6] & 0x0f) | 0x40
	buf[8] = (buf[8] & 0x3f) | 0x80
	return hex.EncodeToString(buf[0:4]) + "-" +
		hex.EncodeToString(buf[4:6]) + "-" +
		hex.EncodeToString(buf[6:8]) + "-" +
		hex.EncodeToString(buf[8:10]) + "-" +
		hex.EncodeToString(buf[10:16])
}

func arg(call goja.FunctionCall, i int) string {
	if i >= len(call.Arguments) {
		return ""
	}
	return call.Arguments[i].String()
}

func argString(call goja.FunctionCall, i int) (string, bool) {
	if i >= len(call.Arguments) {
		return "", false
	}
	s, ok := call.Arguments[i].Export().(string)
	return s, ok
}

func argAt(call goja.FunctionCall, i int) goja.Value {
	if i < 0 || i >= len(call.Arguments) {
		return goja.Undefined()
	}
	return call.Arguments[i]
}

func digestArg(call goja.FunctionCall, i int, def string) string {
	if s, ok := argString(call, i); ok {
		return s
	}
	return def
}

func intArg(call goja.FunctionCall, i int, def int) int {
	if i >= len(call.Arguments) {
		return def
	}
	return int(call.Arguments[i].ToInteger())
}

func bytesArg(call goja.FunctionCall, i int) []byte {
	if i >= len(call.Arguments) {
		return nil
	}
	return bufferapi.ExportBytes(call.Arguments[i])
}

func optionsArg(call goja.FunctionCall, i int) map[string]any {
	if i >= len(call.Arguments) {
		return nil
	}
	opts, _ := call.Arguments[i].Export().(map[string]any)
	return opts
}

func optInt(opts map[string]any, key string, def int) int {
	if opts == nil {
		return def
	}
	switch v := opts[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func optString(opts map[string]any, key string, def string) string {
	if opts == nil {
		return def
	}
	if s, ok := opts[key].(string); ok {
		return s
	}
	return def
}
