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

package engine

// Event types written to the play-by-play log.
const (
	EventRun            = "run"
	EventStrikeout      = "strikeout"
	EventWalk           = "walk"
	EventOut            = "out"
	EventHit            = "hit"
	EventSingle         = "single"
	EventDouble         = "double"
	EventTriple         = "triple"
	EventHomeRun        = "home_run"
	EventError          = "error"
	EventGameEnd        = "game_end"
	EventMercyRule      = "mercy_rule"
	EventWeatherUpdate  = "weather_update"
	EventFieldUpdate    = "field_update"
	EventPitch          = "pitch"
	EventDefensiveShift = "defensive_shift"
	EventBatterUp       = "batter_up"
)

// Event is one entry in the play-by-play log. Only Type is required; the
// remaining fields are set by the transition that produced the event.
type Event struct {
	Type string `json:"type"`

	Team   Side   `json:"team,omitempty"`
	Player string `json:"player,omitempty"`
	Bases  int    `json:"bases,omitempty"`
	Runs   int    `json:"runs,omitempty"`
	Inning int    `json:"inning,omitempty"`

	ErrorType     string `json:"errorType,omitempty"`
	WinningTeam   Side   `json:"winningTeam,omitempty"`
	RunDifference int    `json:"runDifference,omitempty"`
	Count         string `json:"count,omitempty"`

	Weather *Weather        `json:"weather,omitempty"`
	Field   *Field          `json:"field,omitempty"`
	Pitch   *Pitch          `json:"pitch,omitempty"`
	Shift   *DefensiveShift `json:"shift,omitempty"`

	Timestamp string `json:"ts"`
}

// IsHit reports whether the event credits the batter with a hit.
func (e Event) IsHit() bool {
	switch e.Type {
	case EventHit, EventSingle, EventDouble, EventTriple, EventHomeRun:
		return true
	}
	return false
}
