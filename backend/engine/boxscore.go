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

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// BoxLine is one team's row in a box score.
type BoxLine struct {
	Team    Side   `json:"team"`
	Name    string `json:"name"`
	Innings []int  `json:"innings"`
	Runs    int    `json:"runs"`
	Hits    int    `json:"hits"`
	Errors  int    `json:"errors"`
}

// BoxScore is a read-only summary of a game, away team first.
type BoxScore struct {
	Innings int     `json:"innings"`
	Status  Status  `json:"status"`
	Away    BoxLine `json:"away"`
	Home    BoxLine `json:"home"`
}

// BoxScore derives the per-inning line score. It covers at least the
// regulation innings and every inning played so far.
func (g *Game) BoxScore() BoxScore {
	n := max(g.Settings.Innings, g.State.Inning)
	bs := BoxScore{
		Innings: n,
		Status:  g.State.Status,
		Away:    g.boxLine(Away, n),
		Home:    g.boxLine(Home, n),
	}
	for _, ev := range g.State.Events {
		switch {
		case ev.IsHit():
			bs.line(ev.Team).Hits++
		case ev.Type == EventError && ev.Team.Valid():
			bs.line(ev.Team.Other()).Errors++
		}
	}
	return bs
}

func (g *Game) boxLine(s Side, innings int) BoxLine {
	byInning := *g.State.ScoreByInning.For(s)
	line := BoxLine{
		Team:    s,
		Name:    g.Team(s).Name,
		Innings: make([]int, innings),
		Runs:    *g.State.Total.For(s),
	}
	for i := range innings {
		line.Innings[i] = byInning[i+1]
	}
	return line
}

func (bs *BoxScore) line(s Side) *BoxLine {
	if s == Home {
		return &bs.Home
	}
	return &bs.Away
}

// String renders the box score as an aligned text table.
func (bs BoxScore) String() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprint(w, "\t")
	for i := range bs.Innings {
		fmt.Fprintf(w, "%d\t", i+1)
	}
	fmt.Fprint(w, " R\tH\tE\t\n")
	for _, l := range []BoxLine{bs.Away, bs.Home} {
		fmt.Fprintf(w, "%s\t", l.Name)
		for _, r := range l.Innings {
			fmt.Fprintf(w, "%d\t", r)
		}
		fmt.Fprintf(w, " %d\t%d\t%d\t\n", l.Runs, l.Hits, l.Errors)
	}
	w.Flush()
	return sb.String()
}

// Narrative renders the event log as play-by-play text, one line per event.
func (g *Game) Narrative() string {
	var sb strings.Builder
	var score PerTeam[int]
	for _, ev := range g.State.Events {
		sb.WriteString(g.describe(ev, &score))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (g *Game) describe(ev Event, score *PerTeam[int]) string {
	who := ev.Player
	if who == "" {
		who = "batter"
	}
	team := ""
	if ev.Team.Valid() {
		team = g.Team(ev.Team).Name
	}
	switch ev.Type {
	case EventRun:
		*score.For(ev.Team) += ev.Runs
		return fmt.Sprintf("%s score %d (inning %d). %s", team, ev.Runs, ev.Inning, g.scoreline(*score))
	case EventStrike:
		return fmt.Sprintf("Strike, count %s", ev.Count)
	case EventBall:
		return fmt.Sprintf("Ball, count %s", ev.Count)
	case EventStrikeout:
		return fmt.Sprintf("%s strikes out", who)
	case EventWalk:
		return fmt.Sprintf("%s walks", who)
	case EventOut:
		return fmt.Sprintf("%s is out", who)
	case EventHit:
		return fmt.Sprintf("%s gets a hit%s", who, batted(ev.Runs))
	case EventSingle, EventDouble, EventTriple:
		return fmt.Sprintf("%s hits a %s%s", who, ev.Type, batted(ev.Runs))
	case EventHomeRun:
		return fmt.Sprintf("%s homers%s", who, batted(ev.Runs))
	case EventError:
		return fmt.Sprintf("%s reaches on a %s error%s", who, ev.ErrorType, batted(ev.Runs))
	case EventGameEnd:
		return "Game over. " + g.scoreline(*score)
	case EventMercyRule:
		return fmt.Sprintf("Mercy rule: %s win by %d", g.Team(ev.WinningTeam).Name, ev.RunDifference)
	case EventWeatherUpdate:
		return "Weather updated"
	case EventFieldUpdate:
		if ev.Field != nil {
			return "Field updated: " + ev.Field.Name
		}
		return "Field updated"
	case EventPitch:
		if ev.Pitch != nil && ev.Pitch.Type != "" {
			return fmt.Sprintf("Pitch (%s), count %s", ev.Pitch.Type, ev.Count)
		}
		return fmt.Sprintf("Pitch, count %s", ev.Count)
	case EventDefensiveShift:
		if ev.Shift != nil {
			return "Defense shifts: " + ev.Shift.Type
		}
		return "Defense shifts"
	case EventBatterUp:
		return fmt.Sprintf("%s steps up for %s", who, team)
	}
	return ev.Type
}

func batted(runs int) string {
	if runs == 0 {
		return ""
	}
	return fmt.Sprintf(", %d in", runs)
}

func (g *Game) scoreline(score PerTeam[int]) string {
	return fmt.Sprintf("%s %d, %s %d", g.Away.Name, score.Away, g.Home.Name, score.Home)
}
