// Package keymap translates X11 keysym-style key names into the short key
// vocabulary understood by vncdo.
package keymap

import "strings"

var vncKeys = map[string]string{
	// modifiers
	"ctrl":      "ctrl",
	"alt":       "alt",
	"shift":     "shift",
	"super":     "super",
	"Super_L":   "super",
	"Super_R":   "super",
	"Control_L": "ctrl",
	"Control_R": "ctrl",
	"Alt_L":     "alt",
	"Alt_R":     "alt",
	"Shift_L":   "shift",
	"Shift_R":   "shift",
	"Meta_L":    "super",

	// navigation
	"Return":    "enter",
	"Escape":    "esc",
	"BackSpace": "bsp",
	"Tab":       "tab",
	"space":     "space",
	"Delete":    "del",
	"Insert":    "ins",
	"Home":      "home",
	"End":       "end",
	"Prior":     "pgup",
	"Next":      "pgdn",
	"Page_Up":   "pgup",
	"Page_Down": "pgdn",

	// arrows
	"Up":    "up",
	"Down":  "down",
	"Left":  "left",
	"Right": "right",

	// function keys
	"F1":  "f1",
	"F2":  "f2",
	"F3":  "f3",
	"F4":  "f4",
	"F5":  "f5",
	"F6":  "f6",
	"F7":  "f7",
	"F8":  "f8",
	"F9":  "f9",
	"F10": "f10",
	"F11": "f11",
	"F12": "f12",

	// specials
	"Print":       "prtsc",
	"Caps_Lock":   "caps",
	"Num_Lock":    "num",
	"Scroll_Lock": "scroll",
	"Menu":        "menu",
}

// Lookup returns the vncdo name for a single key and whether it is in the table.
func Lookup(key string) (string, bool) {
	v, ok := vncKeys[key]
	return v, ok
}

// VNCKeyOf converts a key or "+"-joined combo such as "ctrl+Return" into the
// vncdo form "ctrl-enter". Tokens missing from the table are lower-cased.
func VNCKeyOf(combo string) string {
	parts := strings.Split(combo, "+")
	for i, p := range parts {
		if v, ok := vncKeys[p]; ok {
			parts[i] = v
			continue
		}
		parts[i] = strings.ToLower(p)
	}
	return strings.Join(parts, "-")
}

// Keys returns a copy of the translation table.
func Keys() map[string]string {
	out := make(map[string]string, len(vncKeys))
	for k, v := range vncKeys {
		out[k] = v
	}
	return out
}
