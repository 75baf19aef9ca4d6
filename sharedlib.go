package main

import (
	"os"
	"runtime"
)

// sharedLibraryPath resolves the ONNX Runtime shared library. The
// ONNXRUNTIME_SHARED_LIBRARY environment variable wins; otherwise a
// per-OS default under ./third_party is used.
func sharedLibraryPath() string {
	if path := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY"); path != "" {
		return path
	}

	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.dylib"
		}
		return "./third_party/onnxruntime.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
}
