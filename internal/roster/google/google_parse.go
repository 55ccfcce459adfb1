package google

import (
	"fmt"
	"strconv"
	"strings"

	"ownerportal/internal/core"
)

// parseRoster converts a values matrix (as returned by the Sheets API) into
// homeowners. The first row may be a header (ID, First Name, Last Name,
// Email, Inactive); when no header is recognized, positional columns A..E
// are assumed. Rows without a parseable positive ID are skipped.
func parseRoster(values [][]interface{}) []core.Homeowner {
	if len(values) == 0 {
		return nil
	}

	colID, colFirst, colLast, colEmail, colInactive := 0, 1, 2, 3, 4
	if i := indexOf(toStrings(values[0]), "ID"); i >= 0 {
		headers := toStrings(values[0])
		colID = i
		if j := indexOf(headers, "First Name"); j >= 0 {
			colFirst = j
		}
		if j := indexOf(headers, "Last Name"); j >= 0 {
			colLast = j
		}
		if j := indexOf(headers, "Email"); j >= 0 {
			colEmail = j
		}
		if j := indexOf(headers, "Inactive"); j >= 0 {
			colInactive = j
		}
	}

	var out []core.Homeowner
	for _, row := range values {
		cols := toStrings(row)
		id, err := strconv.ParseInt(safeGet(cols, colID), 10, 64)
		if err != nil || id <= 0 {
			continue // header, blank or malformed row
		}
		out = append(out, core.Homeowner{
			ID:        id,
			FirstName: safeGet(cols, colFirst),
			LastName:  safeGet(cols, colLast),
			Email:     safeGet(cols, colEmail),
			Inactive:  parseTriState(safeGet(cols, colInactive)),
		})
	}
	return out
}

// parsePortalAccounts converts a values matrix from the portal tab
// (ID, Homeowner ID, Email, Active, Registered). A blank Active cell counts
// as active: presence on the tab means the account was registered.
func parsePortalAccounts(values [][]interface{}) []core.PortalUser {
	if len(values) == 0 {
		return nil
	}

	colID, colOwner, colEmail, colActive := 0, 1, 2, 3
	if i := indexOf(toStrings(values[0]), "ID"); i >= 0 {
		headers := toStrings(values[0])
		colID = i
		if j := indexOf(headers, "Homeowner ID"); j >= 0 {
			colOwner = j
		}
		if j := indexOf(headers, "Email"); j >= 0 {
			colEmail = j
		}
		if j := indexOf(headers, "Active"); j >= 0 {
			colActive = j
		}
	}

	var out []core.PortalUser
	for _, row := range values {
		cols := toStrings(row)
		id, err := strconv.ParseInt(safeGet(cols, colID), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ownerID, err := strconv.ParseInt(safeGet(cols, colOwner), 10, 64)
		if err != nil || ownerID <= 0 {
			continue
		}
		active := true
		if f := parseFlag(safeGet(cols, colActive)); f != nil {
			active = *f
		}
		out = append(out, core.PortalUser{
			ID:          id,
			HomeownerID: ownerID,
			Email:       safeGet(cols, colEmail),
			Active:      active,
		})
	}
	return out
}

// parseTriState reads the roster's Inactive column: an empty cell means the
// back office never said either way.
func parseTriState(s string) *bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1", "inactive":
		return core.Bool(true)
	case "no", "false", "0", "active":
		return core.Bool(false)
	}
	return nil
}

// parseFlag reads a plain yes/no cell.
func parseFlag(s string) *bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1":
		return core.Bool(true)
	case "no", "false", "0":
		return core.Bool(false)
	}
	return nil
}

func triStateCell(f *bool) string {
	switch {
	case f == nil:
		return ""
	case *f:
		return "yes"
	}
	return "no"
}

func flagCell(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
