package api

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrInvalidLink indicates a share or folder address that could not be parsed.
	ErrInvalidLink = errors.New("invalid link")

	passcodePattern = regexp.MustCompile(`pwd=([^&#]*)`)
	urlPattern      = regexp.MustCompile(`https?://\S+`)
)

// ParseShareURL extracts the share id and optional passcode from a share link
// such as https://pan.quark.cn/s/abcd1234?pwd=x1y2#/list/share.
func ParseShareURL(raw string) (pwdID, passcode string, err error) {
	raw = strings.TrimSpace(raw)

	if m := passcodePattern.FindStringSubmatch(raw); m != nil {
		passcode = m[1]
	}

	path := strings.SplitN(raw, "?", 2)[0]
	path = strings.SplitN(path, "#", 2)[0]
	idx := strings.LastIndex(path, "/s/")
	if idx < 0 {
		return "", "", fmt.Errorf("%w: %q has no /s/ segment", ErrInvalidLink, raw)
	}
	pwdID = strings.Trim(path[idx+len("/s/"):], "/")
	if pwdID == "" {
		return "", "", fmt.Errorf("%w: %q has an empty share id", ErrInvalidLink, raw)
	}
	return pwdID, passcode, nil
}

// ParseFolderURL extracts a folder id from a web address of the user's own
// storage, e.g. https://pan.quark.cn/list#/list/all/0a1b2c-Movies. A bare id
// is returned unchanged.
func ParseFolderURL(raw string) (string, error) {
	raw = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(raw), "/"))
	if raw == "" {
		return "", fmt.Errorf("%w: empty folder address", ErrInvalidLink)
	}

	last := raw
	if idx := strings.LastIndex(raw, "/"); idx >= 0 {
		last = raw[idx+1:]
	}
	if unescaped, err := url.PathUnescape(last); err == nil {
		last = unescaped
	}
	id := strings.SplitN(last, "-", 2)[0]
	if id == "" {
		return "", fmt.Errorf("%w: %q has no folder id", ErrInvalidLink, raw)
	}
	return id, nil
}

// FolderNameFromURL returns the folder name carried by a folder web address
// (the part after "<fid>-"), or "" when the address has none.
func FolderNameFromURL(raw string) string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	last := raw
	if idx := strings.LastIndex(raw, "/"); idx >= 0 {
		last = raw[idx+1:]
	}
	if unescaped, err := url.PathUnescape(last); err == nil {
		last = unescaped
	}
	parts := strings.SplitN(last, "-", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// ExtractURLs returns every http(s) address found in text, in order.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// WithPasscode appends ?pwd=<code> to a share URL. An empty code returns the URL unchanged.
func WithPasscode(shareURL, passcode string) string {
	if passcode == "" {
		return shareURL
	}
	sep := "?"
	if strings.Contains(shareURL, "?") {
		sep = "&"
	}
	return shareURL + sep + "pwd=" + passcode
}
