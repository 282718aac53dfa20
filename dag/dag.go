//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of SmartSales.
//
// SmartSales is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SmartSales is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with SmartSales. If not, see https://www.gnu.org/licenses/.

// dag.go - Stage graph and topological ordering
package dag

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// DAG is a validated graph of stages. Build one with a Builder.
type DAG struct {
	id     string
	name   string
	stages map[string]*Stage
	order  []string // insertion order
}

// ID returns the DAG's identifier.
func (d *DAG) ID() string {
	return d.id
}

// Name returns the DAG's name.
func (d *DAG) Name() string {
	return d.name
}

// Stage returns the stage with the given id.
func (d *DAG) Stage(id string) (*Stage, bool) {
	s, ok := d.stages[id]
	return s, ok
}

// StageIDs returns the stage ids in the order they were added.
func (d *DAG) StageIDs() []string {
	return append([]string(nil), d.order...)
}

// HasStage checks if a stage exists in the DAG.
func (d *DAG) HasStage(id string) bool {
	_, ok := d.stages[id]
	return ok
}

// Dependencies returns the ids a stage waits for.
func (d *DAG) Dependencies(id string) []string {
	if s, ok := d.stages[id]; ok {
		return s.Dependencies()
	}
	return nil
}

// Downstream returns the stages that depend directly on id, in insertion
// order.
func (d *DAG) Downstream(id string) []string {
	var out []string
	for _, sid := range d.order {
		if slices.Contains(d.stages[sid].deps, id) {
			out = append(out, sid)
		}
	}
	return out
}

// Levels groups stages so that every stage comes after all of its
// dependencies. Stages of one level do not depend on each other; within a
// level they keep insertion order.
func (d *DAG) Levels() ([][]string, error) {
	return levels(d.order, d.stages)
}

// ExecutionOrder flattens Levels.
func (d *DAG) ExecutionOrder() ([]string, error) {
	lv, err := d.Levels()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, l := range lv {
		out = append(out, l...)
	}
	return out, nil
}

// Render draws the stages, their dependencies and levels as a table.
func (d *DAG) Render() string {
	lv, err := d.Levels()
	if err != nil {
		return err.Error()
	}
	level := make(map[string]int)
	for i, l := range lv {
		for _, id := range l {
			level[id] = i
		}
	}

	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.SetTitle(fmt.Sprintf("%s (%s)", d.name, d.id))
	w.AppendHeader(table.Row{"Level", "Stage", "Depends On", "Description"})
	for _, l := range lv {
		for _, id := range l {
			s := d.stages[id]
			w.AppendRow(table.Row{level[id], id, strings.Join(s.deps, ", "), s.description})
		}
	}
	return w.Render()
}

// levels runs Kahn's algorithm one frontier at a time.
func levels(order []string, stages map[string]*Stage) ([][]string, error) {
	inDegree := make(map[string]int, len(stages))
	for _, id := range order {
		inDegree[id] = len(stages[id].deps)
	}

	var out [][]string
	done := 0
	for done < len(order) {
		var level []string
		for _, id := range order {
			if inDegree[id] == 0 {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(findCycle(order, stages), " -> "))
		}
		for _, id := range level {
			inDegree[id] = -1
			for _, other := range order {
				if slices.Contains(stages[other].deps, id) {
					inDegree[other]--
				}
			}
		}
		done += len(level)
		out = append(out, level)
	}
	return out, nil
}

// findCycle returns one dependency cycle as a path that starts and ends
// with the same stage, or nil.
func findCycle(order []string, stages map[string]*Stage) []string {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(stages))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		state[id] = visiting
		stack = append(stack, id)
		for _, dep := range stages[id].deps {
			if _, ok := stages[dep]; !ok {
				continue
			}
			switch state[dep] {
			case visiting:
				i := slices.Index(stack, dep)
				return append(append([]string(nil), stack[i:]...), dep)
			case unvisited:
				if c := visit(dep); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = visited
		return nil
	}

	for _, id := range order {
		if state[id] == unvisited {
			if c := visit(id); c != nil {
				return c
			}
		}
	}
	return nil
}
