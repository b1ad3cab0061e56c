// Package main is the execution core's local CLI runner: it packages a
// single function directory into a version archive in memory, drives it
// through the exact same Dispatcher used by
// cmd/faasd, and prints the resulting response without ever opening a
// socket — the same "materialize, run, tear down" path production traffic
// takes, one invocation at a time.
package main

import (
	"archive/zip"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io/fs"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/faasforge/faascore/core/dispatcher"
	"github.com/faasforge/faascore/core/kv"
	"github.com/faasforge/faascore/core/logging"
	"github.com/faasforge/faascore/core/materializer"
	"github.com/faasforge/faascore/core/recorder"
	"github.com/faasforge/faascore/core/resolver"
	"github.com/faasforge/faascore/core/store"
	"github.com/faasforge/faascore/domain/function"
)

type headerFlags []string

func (h *headerFlags) String() string { return strings.Join(*h, ",") }
func (h *headerFlags) Set(v string) error {
	*h = append(*h, v)
	return nil
}

func main() {
	if len(os.Args) < 2 || os.Args[1] != "run" {
		fmt.Fprintln(os.Stderr, "usage: faasrun run [path] [flags]")
		os.Exit(1)
	}

	flagSet := flag.NewFlagSet("run", flag.ExitOnError)
	method := flagSet.String("method", "GET", "HTTP method")
	reqPath := flagSet.String("path", "/", "request path")
	data := flagSet.String("data", "", "request body")
	envFile := flagSet.String("env", "", "path to a KEY=VALUE env file")
	kvFile := flagSet.String("kv-file", "", "path to a JSON file backing the kv store")
	var headers headerFlags
	flagSet.Var(&headers, "header", "request header as K:V, repeatable")

	args := os.Args[2:]
	pathArg := "."
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		pathArg = args[0]
		args = args[1:]
	}
	if err := flagSet.Parse(args); err != nil {
		os.Exit(1)
	}

	if err := run(pathArg, *method, *reqPath, *data, headers, *envFile, *kvFile); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(dir, method, reqPath, data string, headers headerFlags, envFile, kvFilePath string) error {
	archive, err := zipDirectory(dir)
	if err != nil {
		return fmt.Errorf("package %s: %w", dir, err)
	}

	env, err := loadEnvFile(envFile)
	if err != nil {
		return fmt.Errorf("load env file: %w", err)
	}

	kvDriver, err := buildKVDriver(kvFilePath)
	if err != nil {
		return fmt.Errorf("build kv driver: %w", err)
	}

	mem := store.NewMemory()
	descriptor := &function.Descriptor{
		ID:              "local",
		Name:            "local",
		Active:          true,
		ActiveVersionID: "local:1",
		Timeout:         30 * time.Second,
		HeapCapMB:       256,
	}
	mem.PutFunction(descriptor)
	mem.PutVersion(&function.Version{
		FunctionID:  descriptor.ID,
		Number:      1,
		ContentHash: "local",
		State:       function.VersionReady,
	}, archive)
	mem.SetEnv(descriptor.ID, toEnvBindings(env))

	res, err := resolver.New(mem, 16)
	if err != nil {
		return err
	}
	logger := logging.New("faasrun", "warn", "text")
	rec := recorder.New(mem, nil, nil)

	d := dispatcher.New(res, materializer.New(), mem, kvDriver, rec, logger, dispatcher.Limits{
		DefaultTimeout:   descriptor.Timeout,
		DefaultHeapCapMB: descriptor.HeapCapMB,
	})

	if !strings.HasPrefix(reqPath, "/") {
		reqPath = "/" + reqPath
	}
	req := httptest.NewRequest(method, "/invoke/local"+reqPath, strings.NewReader(data))
	for _, h := range headers {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) != 2 {
			continue
		}
		req.Header.Set(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
	}
	w := httptest.NewRecorder()

	d.Router().ServeHTTP(w, req)

	fmt.Printf("%d\n%s\n", w.Code, w.Body.String())

	for _, log := range mem.ExecutionLogs() {
		if log.Stdout != "" {
			fmt.Fprint(os.Stdout, log.Stdout)
		}
		if log.Stderr != "" {
			fmt.Fprint(os.Stderr, log.Stderr)
		}
		if log.Outcome != function.OutcomeSuccess {
			return fmt.Errorf("%s: %s", log.ErrorKind, log.ErrorMessage)
		}
	}
	if w.Code >= 400 {
		return fmt.Errorf("request failed with status %d", w.Code)
	}
	return nil
}

func buildKVDriver(path string) (kv.Driver, error) {
	if path == "" {
		return kv.NewMemDriver(), nil
	}
	return kv.NewJSONFileDriver(path)
}

func toEnvBindings(env map[string]string) []function.EnvBinding {
	out := make([]function.EnvBinding, 0, len(env))
	for k, v := range env {
		out = append(out, function.EnvBinding{Key: k, Value: v})
	}
	return out
}

func loadEnvFile(path string) (map[string]string, error) {
	out := map[string]string{}
	if path == "" {
		return out, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		out[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return out, nil
}

// zipDirectory packages dir's tree into an in-memory zip archive rooted at
// dir itself, so a local checkout with index.js at its root materializes
// the same way a real uploaded version archive would.
func zipDirectory(dir string) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		f, err := w.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		_, err = f.Write(content)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
