package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"unicode"

	"github.com/pkg/browser"
)

// VolumeCommand is one of the supported system volume operations.
type VolumeCommand string

const (
	VolumeUp   VolumeCommand = "volume up"
	VolumeDown VolumeCommand = "volume down"
	Mute       VolumeCommand = "mute"
	Unmute     VolumeCommand = "unmute"
)

// ErrUnsupported is returned when the host platform has no way to perform
// an operation.
var ErrUnsupported = errors.New("not supported on this platform")

// ErrUnsafeName is returned for app names that are empty or carry characters
// the platform's launcher would interpret.
var ErrUnsafeName = errors.New("unsafe app name")

// Launcher is the boundary to the host operating system.
type Launcher interface {
	OpenApp(ctx context.Context, name string) error
	CloseApp(ctx context.Context, name string) error
	OpenURL(ctx context.Context, url string) error
	OpenFile(ctx context.Context, path string) error
	Volume(ctx context.Context, cmd VolumeCommand) error
}

// argv is a program plus arguments. "{}" is replaced by the operand.
type argv []string

func (a argv) with(operand string) []string {
	out := make([]string, len(a))
	for i, s := range a {
		out[i] = strings.ReplaceAll(s, "{}", operand)
	}
	return out
}

// platformCommands is the command table for one operating system.
type platformCommands struct {
	openApp  argv
	closeApp argv
	openFile argv
	volume   map[VolumeCommand]argv
	// detach starts openApp without waiting for it to exit.
	detach bool
	// closeByPattern means closeApp takes a regular expression, so the name
	// is quoted and matched exactly.
	closeByPattern bool
	// forbidden lists characters rejected in app names.
	forbidden string
}

// cmdMeta are the characters cmd.exe treats specially. Arguments to cmd /c
// are not quoted the way os/exec quotes them, so they are refused outright.
const cmdMeta = "\"&|<>^%!()*"

func (p platformCommands) appName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrUnsafeName)
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("%w: %q contains control characters", ErrUnsafeName, name)
	}
	if i := strings.IndexAny(name, p.forbidden); i >= 0 {
		return "", fmt.Errorf("%w: %q contains %q", ErrUnsafeName, name, name[i])
	}
	return name, nil
}

// openArgs returns the command that launches name.
func (p platformCommands) openArgs(name string) ([]string, error) {
	name, err := p.appName(name)
	if err != nil {
		return nil, err
	}
	return p.openApp.with(name), nil
}

// closeArgs returns the command that terminates processes called name.
func (p platformCommands) closeArgs(name string) ([]string, error) {
	name, err := p.appName(name)
	if err != nil {
		return nil, err
	}
	if p.closeByPattern {
		name = regexp.QuoteMeta(name)
	}
	return p.closeApp.with(name), nil
}

// commandsFor returns the command table for goos.
func commandsFor(goos string) platformCommands {
	switch goos {
	case "darwin":
		return platformCommands{
			openApp:        argv{"open", "-a", "{}"},
			closeApp:       argv{"pkill", "-x", "-i", "{}"},
			closeByPattern: true,
			openFile:       argv{"open", "{}"},
			volume: map[VolumeCommand]argv{
				VolumeUp:   {"osascript", "-e", "set volume output volume (output volume of (get volume settings) + 10)"},
				VolumeDown: {"osascript", "-e", "set volume output volume (output volume of (get volume settings) - 10)"},
				Mute:       {"osascript", "-e", "set volume output muted true"},
				Unmute:     {"osascript", "-e", "set volume output muted false"},
			},
		}
	case "windows":
		return platformCommands{
			openApp:   argv{"cmd", "/c", "start", "", "{}"},
			closeApp:  argv{"taskkill", "/IM", "{}.exe", "/F"},
			detach:    true,
			forbidden: cmdMeta,
		}
	default:
		return platformCommands{
			openApp:        argv{"{}"},
			closeApp:       argv{"pkill", "-x", "-i", "{}"},
			closeByPattern: true,
			openFile:       argv{"xdg-open", "{}"},
			volume: map[VolumeCommand]argv{
				VolumeUp:   {"pactl", "set-sink-volume", "@DEFAULT_SINK@", "+10%"},
				VolumeDown: {"pactl", "set-sink-volume", "@DEFAULT_SINK@", "-10%"},
				Mute:       {"pactl", "set-sink-mute", "@DEFAULT_SINK@", "1"},
				Unmute:     {"pactl", "set-sink-mute", "@DEFAULT_SINK@", "0"},
			},
			detach: true,
		}
	}
}

// PlatformLauncher runs host commands with os/exec and opens URLs with the
// default browser.
type PlatformLauncher struct {
	cmds   platformCommands
	logger *slog.Logger
}

// NewPlatformLauncher returns a Launcher for the running operating system.
func NewPlatformLauncher(logger *slog.Logger) *PlatformLauncher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlatformLauncher{cmds: commandsFor(runtime.GOOS), logger: logger.With("component", "launcher")}
}

func (l *PlatformLauncher) OpenApp(ctx context.Context, name string) error {
	args, err := l.cmds.openArgs(name)
	if err != nil {
		return err
	}
	if l.cmds.detach {
		return l.start(args)
	}
	return l.run(ctx, args)
}

// CloseApp terminates processes whose name is exactly name, ignoring case.
func (l *PlatformLauncher) CloseApp(ctx context.Context, name string) error {
	args, err := l.cmds.closeArgs(name)
	if err != nil {
		return err
	}
	return l.run(ctx, args)
}

func (l *PlatformLauncher) OpenURL(_ context.Context, url string) error {
	if err := browser.OpenURL(url); err != nil {
		return fmt.Errorf("open url %s: %w", url, err)
	}
	return nil
}

func (l *PlatformLauncher) OpenFile(_ context.Context, path string) error {
	if len(l.cmds.openFile) == 0 {
		return browser.OpenFile(path)
	}
	return l.start(l.cmds.openFile.with(path))
}

func (l *PlatformLauncher) Volume(ctx context.Context, cmd VolumeCommand) error {
	args, ok := l.cmds.volume[cmd]
	if !ok {
		return fmt.Errorf("%s: %w", cmd, ErrUnsupported)
	}
	return l.run(ctx, args)
}

// run executes args and waits for it to exit.
func (l *PlatformLauncher) run(ctx context.Context, args []string) error {
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	if err != nil {
		l.logger.Debug("command failed", "argv", args, "output", strings.TrimSpace(string(out)))
		return fmt.Errorf("%s: %w", args[0], err)
	}
	return nil
}

// start launches args without waiting; the child is reaped in the background.
func (l *PlatformLauncher) start(args []string) error {
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			l.logger.Debug("launched process exited", "argv", args, "err", err)
		}
	}()
	return nil
}
