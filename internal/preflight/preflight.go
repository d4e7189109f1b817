package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"pidish/internal/config"
	"pidish/internal/printer"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes every check that applies to cfg.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	if cfg.GPIO.Simulate {
		results = append(results, Result{Name: "GPIO", Passed: true, Optional: true, Detail: "simulated"})
	} else {
		results = append(results, CheckDevice("GPIO", cfg.GPIO.Device))
	}

	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	objects := CheckDirectoryAccess("Objects directory", cfg.Paths.ObjectsDir)
	objects.Optional = true
	results = append(results, objects)

	if cfg.Display.Command == "" {
		results = append(results, Result{Name: "Display", Optional: true, Detail: "display.command not configured; frames are only logged"})
	} else {
		results = append(results, CheckCommand("Display", cfg.Display.Command, false))
		results = append(results, CheckFile("Black frame", cfg.Display.BlackImage, false))
		if cfg.Display.FocusImage != "" {
			results = append(results, CheckFile("Focus image", cfg.Display.FocusImage, true))
		}
	}

	results = append(results, CheckCalibrationImages(cfg.Calibration.ImageDir))

	if cfg.Hotplug.Enabled {
		results = append(results, CheckFile("Connector status", cfg.Hotplug.ConnectorStatus, true))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDevice verifies a character device can be opened read/write.
func CheckDevice(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "device not configured"}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v; add the user to the gpio group)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckCommand looks up the first word of command on PATH.
func CheckCommand(name, command string, optional bool) Result {
	res := Result{Name: name, Optional: optional}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		res.Detail = "command not configured"
		return res
	}
	path, err := exec.LookPath(fields[0])
	if err != nil {
		res.Detail = fmt.Sprintf("binary %q not found", fields[0])
		return res
	}
	res.Passed = true
	res.Detail = path
	return res
}

// CheckFile verifies a regular file is readable.
func CheckFile(name, path string, optional bool) Result {
	res := Result{Name: name, Optional: optional}
	if strings.TrimSpace(path) == "" {
		res.Detail = "path not configured"
		return res
	}
	info, err := os.Stat(path)
	if err != nil {
		res.Detail = fmt.Sprintf("%s (error: %v)", path, err)
		return res
	}
	if info.IsDir() {
		res.Detail = fmt.Sprintf("%s (error: is a directory)", path)
		return res
	}
	res.Passed = true
	res.Detail = path
	return res
}

// CheckCalibrationImages verifies the sweep frames exist. Only calibration
// needs them, so the result is optional.
func CheckCalibrationImages(dir string) Result {
	res := Result{Name: "Calibration images", Optional: true}
	cali := printer.Calibration{ImageDir: dir}
	var missing int
	for i := 0; i <= printer.CalibrationFrames; i++ {
		if _, err := os.Stat(cali.Image(i)); err != nil {
			missing++
		}
	}
	if missing > 0 {
		res.Detail = fmt.Sprintf("%s (%d of %d frames missing)", dir, missing, printer.CalibrationFrames+1)
		return res
	}
	res.Passed = true
	res.Detail = fmt.Sprintf("%s (%d frames)", dir, printer.CalibrationFrames+1)
	return res
}
