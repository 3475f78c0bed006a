package main

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/glizzus/aether/internal/ethersound"
)

var summaryProperties = []ethersound.SessionProperty{
	ethersound.SessionPersistentID,
	ethersound.SessionName,
	ethersound.SessionSampleRate,
	ethersound.SessionChannelMask,
}

func orUnknown[T any](v *T) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprint(*v)
}

func formatSession(s ethersound.Session) string {
	mask := "?"
	if s.ChannelMask != nil {
		mask = fmt.Sprintf("0x%x (%d channels)", *s.ChannelMask, bits.OnesCount32(*s.ChannelMask))
	}
	return fmt.Sprintf("%d\t%s\t%s\t%s Hz\t%s",
		s.ID, orUnknown(s.PersistentID), orUnknown(s.Name), orUnknown(s.SampleRate), mask)
}

func formatDevice(d ethersound.Device) string {
	return fmt.Sprintf("%s\t%s\t%s\t%s\t%d Hz\t%d channels",
		d.ID, d.FriendlyName, d.Flow, d.State, d.SampleRate, d.Channels)
}

func formatConfiguration(cfg ethersound.SessionConfiguration) (string, error) {
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format configuration: %w", err)
	}
	return string(out), nil
}

// parseValue reads a command line value as the most specific JSON scalar it
// looks like.
func parseValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil && !isNumeric(raw) {
		return b
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func isNumeric(raw string) bool {
	return strings.Trim(raw, "0123456789") == ""
}
