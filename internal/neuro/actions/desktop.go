package actions

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bdobrica/Neuro/internal/neuro/commands"
)

// GoogleSearchURL returns the Google results page for query.
func GoogleSearchURL(query string) string {
	return "https://www.google.com/search?q=" + url.QueryEscape(query)
}

// YoutubeSearchURL returns the YouTube results page for query.
func YoutubeSearchURL(query string) string {
	return "https://www.youtube.com/results?search_query=" + url.QueryEscape(query)
}

// appSiteURL is the web fallback for an application that failed to launch.
func appSiteURL(app string) string {
	return "https://www." + strings.ToLower(strings.ReplaceAll(app, " ", "")) + ".com"
}

func (h *handlers) open(ctx context.Context, cmd commands.Command) (string, error) {
	app := cmd.Argument
	launchErr := h.Launcher.OpenApp(ctx, app)
	if launchErr == nil {
		return "Opened " + app + ".", nil
	}
	if ctx.Err() != nil || errors.Is(launchErr, ErrUnsafeName) {
		return "", launchErr
	}

	site := appSiteURL(app)
	h.Logger.Debug("app launch failed, opening website", "app", app, "url", site, "err", launchErr)
	if err := h.Launcher.OpenURL(ctx, site); err != nil {
		return "", fmt.Errorf("open %s: %w", app, errors.Join(launchErr, err))
	}
	return "Opened " + site + ".", nil
}

func (h *handlers) close(ctx context.Context, cmd commands.Command) (string, error) {
	if err := h.Launcher.CloseApp(ctx, cmd.Argument); err != nil {
		return "", fmt.Errorf("close %s: %w", cmd.Argument, err)
	}
	return "Closed " + cmd.Argument + ".", nil
}

func (h *handlers) play(ctx context.Context, cmd commands.Command) (string, error) {
	if err := h.Launcher.OpenURL(ctx, YoutubeSearchURL(cmd.Argument)); err != nil {
		return "", err
	}
	return "Playing " + cmd.Argument + " on YouTube.", nil
}

func (h *handlers) googleSearch(ctx context.Context, cmd commands.Command) (string, error) {
	if err := h.Launcher.OpenURL(ctx, GoogleSearchURL(cmd.Argument)); err != nil {
		return "", err
	}
	return "Searched Google for " + cmd.Argument + ".", nil
}

func (h *handlers) youtubeSearch(ctx context.Context, cmd commands.Command) (string, error) {
	if err := h.Launcher.OpenURL(ctx, YoutubeSearchURL(cmd.Argument)); err != nil {
		return "", err
	}
	return "Searched YouTube for " + cmd.Argument + ".", nil
}

func (h *handlers) system(ctx context.Context, cmd commands.Command) (string, error) {
	vc := VolumeCommand(strings.ToLower(cmd.Argument))
	switch vc {
	case VolumeUp, VolumeDown, Mute, Unmute:
	default:
		return "", fmt.Errorf("unsupported system command %q", cmd.Argument)
	}
	if err := h.Launcher.Volume(ctx, vc); err != nil {
		return "", err
	}
	return "System: " + string(vc) + ".", nil
}

func (h *handlers) iot(ctx context.Context, cmd commands.Command) (string, error) {
	payload, err := h.Devices.Publish(ctx, cmd.Device.ID, cmd.Device.State)
	if err != nil {
		return "", err
	}
	return "IoT command sent: " + payload, nil
}
