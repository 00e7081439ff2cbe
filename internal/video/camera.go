package video

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// queryTool is the external command used to read a device's properties,
// one "key=value" pair per line on stdout. Overridable in tests, the same
// hook-variable pattern the teacher uses for openSerialPort in
// cmd/can-server/backend_serial.go.
var queryTool = "v4l2-ctl"

var globFunc = filepath.Glob

// queryDeviceFn is overridable in tests; defaultQueryDeviceFn shells out
// to queryTool.
var queryDeviceFn = defaultQueryDeviceFn

func defaultQueryDeviceFn(ctx context.Context, device string) (map[string]string, error) {
	cmd := exec.CommandContext(ctx, queryTool, "--device", device, "--all")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	props := make(map[string]string)
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return props, nil
}

// DiscoverCamera scans /dev/video* in lexical order and returns the path
// of the first device whose queried properties match every key/value in
// required. Per §4.5, failure to find any match is a start failure.
func DiscoverCamera(ctx context.Context, required map[string]string) (string, error) {
	devices, err := globFunc("/dev/video*")
	if err != nil {
		return "", fmt.Errorf("%w: glob /dev/video*: %v", ErrCameraDiscover, err)
	}
	sort.Strings(devices)
	for _, dev := range devices {
		props, err := queryDeviceFn(ctx, dev)
		if err != nil {
			continue
		}
		if matches(props, required) {
			return dev, nil
		}
	}
	return "", fmt.Errorf("%w: no device matched required properties %v", ErrCameraDiscover, required)
}

func matches(props, required map[string]string) bool {
	for k, v := range required {
		if props[k] != v {
			return false
		}
	}
	return true
}
