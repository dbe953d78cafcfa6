// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"slices"

	"github.com/ttbt-io/wiffkeeper/backend/engine"
)

// uuidRegex is a regex for standard UUIDs (8-4-4-4-12 hex digits)
var uuidRegex = regexp.MustCompile(`^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}$`)

// isValidUUID checks if the string is a valid UUID.
func isValidUUID(id string) bool {
	return uuidRegex.MatchString(id)
}

// isValidEmail checks if the string is a valid email address.
func isValidEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

// ErrInvalidCommand wraps every command validation failure.
var ErrInvalidCommand = errors.New("invalid command")

// Command types
const (
	CmdStrike  = "strike"
	CmdBall    = "ball"
	CmdOut     = "out"
	CmdHit     = "hit"
	CmdSingle  = "single"
	CmdDouble  = "double"
	CmdTriple  = "triple"
	CmdHomeRun = "home_run"
	CmdError   = "error"
	CmdRun     = "run"
	CmdEnd     = "end"
	CmdBatter  = "batter"
	CmdWeather = "weather"
	CmdField   = "field"
	CmdPitch   = "pitch"
	CmdShift   = "shift"
)

const (
	maxRunsPerCommand = 99
	maxNameLen        = 64
	maxTextLen        = 500
	maxPlayers        = 30

	// recentCommandWindow is how many applied command ids a game remembers.
	recentCommandWindow = 32
)

// ShiftPayload is the payload of a shift command.
type ShiftPayload struct {
	Type      string            `json:"type"`
	Positions map[string]string `json:"positions,omitempty"`
}

// Command is one scoring intent sent by a client. Only the payload field
// matching Type is read.
type Command struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`

	Runs      int                  `json:"runs,omitempty"`
	ErrorType string               `json:"errorType,omitempty"`
	Batter    string               `json:"batter,omitempty"`
	Weather   *engine.WeatherPatch `json:"weather,omitempty"`
	Field     *engine.FieldPatch   `json:"field,omitempty"`
	Pitch     *engine.PitchPatch   `json:"pitch,omitempty"`
	Shift     *ShiftPayload        `json:"shift,omitempty"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCommand, fmt.Sprintf(format, args...))
}

// validateStringLen checks if the string length is within the limit.
func validateStringLen(s string, max int, name string) error {
	if len(s) > max {
		return invalid("%s too long (max %d chars)", name, max)
	}
	return nil
}

func validateOptString(s *string, max int, name string) error {
	if s == nil {
		return nil
	}
	return validateStringLen(*s, max, name)
}

// ValidateCommand checks the command type and its payload.
func ValidateCommand(cmd Command) error {
	if cmd.ID != "" && !isValidUUID(cmd.ID) {
		return invalid("invalid command ID: %s", cmd.ID)
	}
	switch cmd.Type {
	case "":
		return invalid("missing command type")
	case CmdStrike, CmdBall, CmdOut, CmdHit, CmdSingle, CmdDouble, CmdTriple, CmdHomeRun, CmdEnd:
		return nil
	case CmdRun:
		if cmd.Runs <= 0 || cmd.Runs > maxRunsPerCommand {
			return invalid("runs must be between 1 and %d, got %d", maxRunsPerCommand, cmd.Runs)
		}
		return nil
	case CmdError:
		return validateStringLen(cmd.ErrorType, 20, "errorType")
	case CmdBatter:
		if cmd.Batter == "" {
			return invalid("missing batter")
		}
		return validateStringLen(cmd.Batter, maxNameLen, "batter")
	case CmdWeather:
		return validateWeather(cmd.Weather)
	case CmdField:
		return validateField(cmd.Field)
	case CmdPitch:
		return validatePitch(cmd.Pitch)
	case CmdShift:
		return validateShift(cmd.Shift)
	}
	return invalid("unknown command type: %s", cmd.Type)
}

func validateWeather(p *engine.WeatherPatch) error {
	if p == nil {
		return invalid("missing weather")
	}
	if p.Humidity != nil && (*p.Humidity < 0 || *p.Humidity > 100) {
		return invalid("humidity out of range: %v", *p.Humidity)
	}
	if p.WindSpeed != nil && *p.WindSpeed < 0 {
		return invalid("negative wind speed")
	}
	return errors.Join(
		validateOptString(p.WindDirection, 20, "windDirection"),
		validateOptString(p.Conditions, maxNameLen, "conditions"),
		validateOptString(p.Notes, maxTextLen, "notes"),
	)
}

func validateField(p *engine.FieldPatch) error {
	if p == nil {
		return invalid("missing field")
	}
	if d := p.Dimensions; d != nil {
		for _, v := range []*int{d.LeftField, d.CenterField, d.RightField, d.FoulLines} {
			if v != nil && (*v <= 0 || *v > 1000) {
				return invalid("field dimension out of range: %d", *v)
			}
		}
	}
	return errors.Join(
		validateOptString(p.Name, maxNameLen, "name"),
		validateOptString(p.Surface, maxNameLen, "surface"),
		validateOptString(p.Conditions, maxNameLen, "conditions"),
	)
}

var pitchResults = []string{engine.PitchBall, engine.PitchStrike, engine.PitchFoul, engine.PitchInPlay}

func validatePitch(p *engine.PitchPatch) error {
	if p == nil {
		return invalid("missing pitch")
	}
	if p.Result != nil && !slices.Contains(pitchResults, *p.Result) {
		return invalid("unknown pitch result: %s", *p.Result)
	}
	if p.Speed != nil && (*p.Speed < 0 || *p.Speed > 150) {
		return invalid("pitch speed out of range: %v", *p.Speed)
	}
	return errors.Join(
		validateOptString(p.Type, maxNameLen, "type"),
		validateOptString(p.Location, maxNameLen, "location"),
	)
}

var shiftTypes = []string{engine.ShiftStandard, engine.ShiftLeft, engine.ShiftRight, engine.ShiftInfieldIn, engine.ShiftNoDoubles}

func validateShift(p *ShiftPayload) error {
	if p == nil {
		return invalid("missing shift")
	}
	if !slices.Contains(shiftTypes, p.Type) {
		return invalid("unknown shift type: %s", p.Type)
	}
	if len(p.Positions) > 20 {
		return invalid("too many shift positions")
	}
	for pos, player := range p.Positions {
		if len(pos) > 20 || len(player) > maxNameLen {
			return invalid("shift position too long")
		}
	}
	return nil
}

// ApplyCommand validates cmd and runs it against g. It reports whether the
// game changed. A command whose id matches one of the recently applied ids
// is skipped, and so is any scoring command on a final game; neither is an
// error.
func ApplyCommand(g *Game, cmd Command) (bool, error) {
	if err := ValidateCommand(cmd); err != nil {
		return false, err
	}
	if g.seenCommand(cmd.ID) {
		return false, nil
	}

	var applied bool
	switch cmd.Type {
	case CmdStrike:
		applied = g.Strike()
	case CmdBall:
		applied = g.Ball()
	case CmdOut:
		applied = g.Out()
	case CmdHit:
		applied = g.Hit()
	case CmdSingle:
		applied = g.Single()
	case CmdDouble:
		applied = g.Double()
	case CmdTriple:
		applied = g.Triple()
	case CmdHomeRun:
		applied = g.HomeRun()
	case CmdError:
		applied = g.ReachOnError(cmd.ErrorType)
	case CmdRun:
		var err error
		if applied, err = g.AddRun(cmd.Runs); err != nil {
			return false, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
	case CmdEnd:
		applied = g.End()
	case CmdBatter:
		applied = g.SetCurrentBatter(cmd.Batter)
	case CmdWeather:
		g.UpdateWeather(*cmd.Weather)
		applied = true
	case CmdField:
		g.UpdateField(*cmd.Field)
		applied = true
	case CmdPitch:
		applied = g.RecordPitch(*cmd.Pitch)
	case CmdShift:
		applied = g.SetDefensiveShift(cmd.Shift.Type, cmd.Shift.Positions)
	}
	if applied && cmd.ID != "" {
		g.rememberCommand(cmd.ID)
	}
	return applied, nil
}

func (g *Game) seenCommand(id string) bool {
	if id == "" {
		return false
	}
	return id == g.LastCommandID || slices.Contains(g.RecentCommandIDs, id)
}

func (g *Game) rememberCommand(id string) {
	g.LastCommandID = id
	g.RecentCommandIDs = append(g.RecentCommandIDs, id)
	if n := len(g.RecentCommandIDs) - recentCommandWindow; n > 0 {
		g.RecentCommandIDs = slices.Delete(g.RecentCommandIDs, 0, n)
	}
}

// GameSetup is the body of a new-game request.
type GameSetup struct {
	Home        engine.TeamRef        `json:"home"`
	Away        engine.TeamRef        `json:"away"`
	Settings    engine.Settings       `json:"settings"`
	Tournament  engine.TournamentLink `json:"tournament"`
	Permissions *Permissions          `json:"permissions,omitempty"`
}

func validateTeamRef(t engine.TeamRef, side string) error {
	if t.ID != "" && !isValidUUID(t.ID) {
		return fmt.Errorf("invalid %s team id: %s", side, t.ID)
	}
	if len(t.Name) > maxNameLen {
		return fmt.Errorf("%s name too long (max %d chars)", side, maxNameLen)
	}
	if len(t.Players) > maxPlayers {
		return fmt.Errorf("%s lineup too long (max %d players)", side, maxPlayers)
	}
	for _, p := range t.Players {
		if p == "" || len(p) > maxNameLen {
			return fmt.Errorf("invalid %s lineup entry %q", side, p)
		}
	}
	return nil
}

// Validate checks the participants, settings and links of the request.
func (s GameSetup) Validate() error {
	if err := validateTeamRef(s.Home, "home"); err != nil {
		return err
	}
	if err := validateTeamRef(s.Away, "away"); err != nil {
		return err
	}
	st := s.Settings
	if st.Innings < 0 || st.Innings > 20 || st.MaxInnings < 0 || st.MaxInnings > 30 || st.MercyRule < 0 || st.MercyRule > 100 {
		return fmt.Errorf("settings out of range")
	}
	innings := st.Innings
	if innings == 0 {
		innings = engine.DefaultInnings
	}
	maxInnings := st.MaxInnings
	if maxInnings == 0 {
		maxInnings = engine.DefaultMaxInnings
	}
	if maxInnings < innings {
		return fmt.Errorf("maxInnings %d is less than innings %d", maxInnings, innings)
	}
	if s.Tournament.ID != "" && !isValidUUID(s.Tournament.ID) {
		return fmt.Errorf("invalid tournament id: %s", s.Tournament.ID)
	}
	if s.Permissions != nil {
		return validatePermissions(*s.Permissions)
	}
	return nil
}

// Options translates the request into engine options. Missing names keep
// the engine defaults.
func (s GameSetup) Options() []engine.Option {
	home, away := s.Home, s.Away
	if home.Name == "" {
		home.Name = "Home"
	}
	if away.Name == "" {
		away.Name = "Away"
	}
	return []engine.Option{
		engine.WithTeams(home, away),
		engine.WithSettings(s.Settings),
		engine.WithTournament(s.Tournament),
	}
}
