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

import "maps"

// Pitch results understood by RecordPitch.
const (
	PitchBall   = "ball"
	PitchStrike = "strike"
	PitchFoul   = "foul"
	PitchInPlay = "in_play"
)

// Shift types.
const (
	ShiftStandard  = "standard"
	ShiftLeft      = "shift_left"
	ShiftRight     = "shift_right"
	ShiftInfieldIn = "infield_in"
	ShiftNoDoubles = "no_doubles"
)

// WeatherPatch carries the weather fields to change. Nil fields are left alone.
type WeatherPatch struct {
	Temperature   *float64 `json:"temperature,omitempty"`
	Humidity      *float64 `json:"humidity,omitempty"`
	WindSpeed     *float64 `json:"windSpeed,omitempty"`
	WindDirection *string  `json:"windDirection,omitempty"`
	Conditions    *string  `json:"conditions,omitempty"`
	Notes         *string  `json:"notes,omitempty"`
}

// Apply merges p into w.
func (p WeatherPatch) Apply(w *Weather) {
	if p.Temperature != nil {
		w.Temperature = ptr(*p.Temperature)
	}
	if p.Humidity != nil {
		w.Humidity = ptr(*p.Humidity)
	}
	if p.WindSpeed != nil {
		w.WindSpeed = ptr(*p.WindSpeed)
	}
	setIf(&w.WindDirection, p.WindDirection)
	setIf(&w.Conditions, p.Conditions)
	setIf(&w.Notes, p.Notes)
}

// DimensionsPatch carries the field dimensions to change.
type DimensionsPatch struct {
	LeftField   *int `json:"leftField,omitempty"`
	CenterField *int `json:"centerField,omitempty"`
	RightField  *int `json:"rightField,omitempty"`
	FoulLines   *int `json:"foulLines,omitempty"`
}

// FieldPatch carries the field attributes to change.
type FieldPatch struct {
	Name       *string          `json:"name,omitempty"`
	Dimensions *DimensionsPatch `json:"dimensions,omitempty"`
	Surface    *string          `json:"surface,omitempty"`
	Conditions *string          `json:"conditions,omitempty"`
}

// Apply merges p into f.
func (p FieldPatch) Apply(f *Field) {
	setIf(&f.Name, p.Name)
	setIf(&f.Surface, p.Surface)
	setIf(&f.Conditions, p.Conditions)
	if d := p.Dimensions; d != nil {
		setIf(&f.Dimensions.LeftField, d.LeftField)
		setIf(&f.Dimensions.CenterField, d.CenterField)
		setIf(&f.Dimensions.RightField, d.RightField)
		setIf(&f.Dimensions.FoulLines, d.FoulLines)
	}
}

// PitchPatch carries the pitch attributes to change.
type PitchPatch struct {
	Type     *string  `json:"type,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`
	Location *string  `json:"location,omitempty"`
	Result   *string  `json:"result,omitempty"`
}

// Apply merges p into pt.
func (p PitchPatch) Apply(pt *Pitch) {
	setIf(&pt.Type, p.Type)
	setIf(&pt.Location, p.Location)
	setIf(&pt.Result, p.Result)
	if p.Speed != nil {
		pt.Speed = ptr(*p.Speed)
	}
}

func ptr[T any](v T) *T {
	return &v
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// UpdateWeather merges p into the game's weather and logs a snapshot.
// Weather is informational and may change after the game is final.
func (g *Game) UpdateWeather(p WeatherPatch) {
	p.Apply(&g.Weather)
	snap := g.Weather
	g.record(Event{Type: EventWeatherUpdate, Weather: &snap})
}

// UpdateField merges p into the game's field and logs a snapshot.
func (g *Game) UpdateField(p FieldPatch) {
	p.Apply(&g.Field)
	snap := g.Field
	g.record(Event{Type: EventFieldUpdate, Field: &snap})
}

// RecordPitch tracks a pitch and applies its result to the count. A foul
// counts as a strike except when it would be the strikeout pitch.
func (g *Game) RecordPitch(p PitchPatch) bool {
	if g.IsFinal() {
		return false
	}
	p.Apply(&g.State.CurrentPitch)
	snap := g.State.CurrentPitch

	var result string
	if p.Result != nil {
		result = *p.Result
	}
	switch result {
	case PitchBall:
		g.Ball()
	case PitchStrike:
		g.Strike()
	case PitchFoul:
		if g.State.Strikes < strikeoutStrikes-1 {
			g.Strike()
		}
	}
	g.record(Event{Type: EventPitch, Team: g.State.BattingTeam, Pitch: &snap, Count: g.count()})
	return true
}

// SetDefensiveShift replaces the defensive alignment.
func (g *Game) SetDefensiveShift(shiftType string, positions map[string]string) bool {
	if g.IsFinal() {
		return false
	}
	if shiftType == "" {
		shiftType = ShiftStandard
	}
	g.State.DefensiveShift = DefensiveShift{
		Type:      shiftType,
		Positions: maps.Clone(positions),
		Timestamp: timestamp(),
	}
	if g.State.DefensiveShift.Positions == nil {
		g.State.DefensiveShift.Positions = map[string]string{}
	}
	snap := g.State.DefensiveShift
	snap.Positions = maps.Clone(snap.Positions)
	g.record(Event{Type: EventDefensiveShift, Shift: &snap})
	return true
}
