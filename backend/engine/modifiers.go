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

// Hit types understood by the modifier helpers.
const (
	HitHomeRun    = "home_run"
	HitFlyBall    = "fly_ball"
	HitGroundBall = "ground_ball"
	HitLineDrive  = "line_drive"
)

// Hit locations understood by ShiftEffectiveness.
const (
	LocationLeftSide  = "left_side"
	LocationRightSide = "right_side"
)

// WindImpact returns a distance multiplier for a batted ball of hitType
// under the current weather. Light or unknown wind returns 1.
//
// The result is advisory; no transition reads it.
func (g *Game) WindImpact(hitType string) float64 {
	w := g.Weather
	if w.WindSpeed == nil || *w.WindSpeed < 5 {
		return 1.0
	}
	speed := *w.WindSpeed
	switch hitType {
	case HitHomeRun:
		if speed > 10 {
			switch w.WindDirection {
			case "out":
				return 1.2
			case "in":
				return 0.8
			}
		}
	case HitFlyBall:
		if speed > 15 {
			return 1.3
		}
		if speed > 10 {
			return 1.15
		}
	}
	return 1.0
}

// ShiftEffectiveness rates the current defensive shift against a batted
// ball. Values below 1 mean the shift worked against the batter.
func (g *Game) ShiftEffectiveness(hitType, hitLocation string) float64 {
	switch g.State.DefensiveShift.Type {
	case ShiftLeft:
		if hitLocation == LocationRightSide {
			return 0.7
		}
	case ShiftRight:
		if hitLocation == LocationLeftSide {
			return 0.7
		}
	case ShiftInfieldIn:
		if hitType == HitGroundBall {
			return 1.3
		}
	}
	return 1.0
}
