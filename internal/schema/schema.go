// Package schema loads the declarative protocol document: a TOML tree of
// var, array, cmd and (for UART) frame tables plus top-level bus flags.
// Loading only shapes the tree; rule-level validation happens when the
// parser ingests the tables.
package schema

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/Karlsx/go-canproto/internal/state"
)

// Document is one bus protocol description.
type Document struct {
	CanfdEnable   bool `toml:"canfd_enable"`
	ExtendedFrame bool `toml:"extended_frame"`

	Var   []VarTable   `toml:"var"`
	Array []ArrayTable `toml:"array"`
	Cmd   []CmdTable   `toml:"cmd"`
	Frame []FrameTable `toml:"frame"`
}

// VarTable declares a single-frame field. CAN documents bind it with
// can_id; UART documents reference a frame table by name instead.
type VarTable struct {
	CanID       string   `toml:"can_id"`
	Frame       string   `toml:"frame"`
	VarName     string   `toml:"var_name"`
	VarType     string   `toml:"var_type"`
	ParserType  string   `toml:"parser_type"`
	ParserParam []int64  `toml:"parser_param"`
	VarZoom     *float64 `toml:"var_zoom"`
}

// ArrayTable declares a multi-frame buffer. CAN documents list hex can_id
// strings; UART documents list frame names under frame_id.
type ArrayTable struct {
	CanPackageNum int      `toml:"can_package_num"`
	PackageNum    int      `toml:"package_num"`
	ArrayName     string   `toml:"array_name"`
	CanID         []string `toml:"can_id"`
	FrameID       []string `toml:"frame_id"`
}

// Packages returns the declared frame count regardless of bus dialect.
func (a *ArrayTable) Packages() int {
	if a.CanPackageNum > 0 {
		return a.CanPackageNum
	}
	return a.PackageNum
}

// CmdTable declares a named outbound prototype frame.
type CmdTable struct {
	CanID    string   `toml:"can_id"`
	Frame    string   `toml:"frame"`
	CmdName  string   `toml:"cmd_name"`
	CtrlLen  int      `toml:"ctrl_len"`
	CtrlData []string `toml:"ctrl_data"`
}

// FrameTable names a UART frame and fixes its payload width.
type FrameTable struct {
	FrameName string `toml:"frame_name"`
	DataLen   int    `toml:"data_len"`
}

// Load reads and decodes a document from a TOML file.
func Load(path string) (*Document, error) {
	var doc Document
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return &doc, nil
}

// Parse decodes a document from TOML text.
func Parse(text string) (*Document, error) {
	var doc Document
	if _, err := toml.Decode(text, &doc); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	return &doc, nil
}

var hexPattern = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)

// ParseHex converts a "0x.." identifier string to its value. Malformed or
// overflowing strings log CodeHexIllegalChar on clct and return ok=false.
func ParseHex(s string, clct *state.Collector) (uint32, bool) {
	if !hexPattern.MatchString(s) {
		clct.Log(state.CodeHexIllegalChar)
		return 0, false
	}
	v, err := strconv.ParseUint(s[2:], 16, 32)
	if err != nil {
		clct.Log(state.CodeHexIllegalChar)
		return 0, false
	}
	return uint32(v), true
}

// ParseHexByte converts a "0x.." string that must fit in one byte.
// Wide values log CodeCmdCtrlData and report ok=false while still
// returning the truncated byte, so callers can pack what fits.
func ParseHexByte(s string, clct *state.Collector) (byte, bool) {
	v, ok := ParseHex(s, clct)
	if !ok {
		return 0, false
	}
	if v != v&0xFF {
		clct.Log(state.CodeCmdCtrlData)
		return byte(v & 0xFF), false
	}
	return byte(v), true
}
