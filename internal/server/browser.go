package server

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

func openBrowser(rawURL string) error {
	// Only local http(s) URLs are ever handed to the system opener.
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("refusing to open %q: unsupported scheme", rawURL)
	}

	switch runtime.GOOS {
	case "linux":
		return exec.Command("xdg-open", u.String()).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", u.String()).Start()
	case "darwin":
		return exec.Command("open", u.String()).Start()
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}
