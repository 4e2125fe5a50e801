// Copyright 2026 The Minnow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package minnow

import "fmt"

// ImportInfo is a human-readable description of one import.
type ImportInfo struct {
	Module string
	Name   string
	Kind   ExternKind
	Type   string
}

// ExportInfo is a human-readable description of one export.
type ExportInfo struct {
	Name  string
	Kind  ExternKind
	Index uint32
	Type  string
}

// ImportInfos summarizes the module's imports in declaration order.
func (m *Module) ImportInfos() []ImportInfo {
	infos := make([]ImportInfo, 0, len(m.Imports))
	for _, imp := range m.Imports {
		var typ string
		switch imp.Kind {
		case FunctionKind:
			typ = m.Types[imp.FuncTypeIndex].String()
		case TableKind:
			typ = tableTypeString(imp.TableType)
		case MemoryKind:
			typ = limitsString(imp.MemoryType.Limits) + " pages"
		case GlobalKind:
			typ = globalTypeString(imp.GlobalType)
		}
		infos = append(infos, ImportInfo{
			Module: imp.ModuleName,
			Name:   imp.Name,
			Kind:   imp.Kind,
			Type:   typ,
		})
	}
	return infos
}

// ExportInfos summarizes the module's exports in declaration order.
func (m *Module) ExportInfos() []ExportInfo {
	infos := make([]ExportInfo, 0, len(m.Exports))
	for _, exp := range m.Exports {
		var typ string
		switch exp.Kind {
		case FunctionKind:
			if ft, ok := m.funcTypeAt(exp.Index); ok {
				typ = ft.String()
			}
		case TableKind:
			if tt, ok := m.tableTypeAt(exp.Index); ok {
				typ = tableTypeString(tt)
			}
		case MemoryKind:
			if mt, ok := m.memoryTypeAt(exp.Index); ok {
				typ = limitsString(mt.Limits) + " pages"
			}
		case GlobalKind:
			if gt, ok := m.globalTypeAt(exp.Index); ok {
				typ = globalTypeString(gt)
			}
		}
		infos = append(infos, ExportInfo{
			Name:  exp.Name,
			Kind:  exp.Kind,
			Index: exp.Index,
			Type:  typ,
		})
	}
	return infos
}

func (m *Module) memoryTypeAt(index uint32) (MemoryType, bool) {
	i := index
	for _, imp := range m.Imports {
		if imp.Kind != MemoryKind {
			continue
		}
		if i == 0 {
			return imp.MemoryType, true
		}
		i--
	}
	if int(i) < len(m.Memories) {
		return m.Memories[i], true
	}
	return MemoryType{}, false
}

func limitsString(l Limits) string {
	if l.Max == nil {
		return fmt.Sprintf("min %d", l.Min)
	}
	return fmt.Sprintf("min %d max %d", l.Min, *l.Max)
}

func tableTypeString(tt TableType) string {
	return fmt.Sprintf("%s (%s)", valueTypeName(tt.ReferenceType), limitsString(tt.Limits))
}

func globalTypeString(gt GlobalType) string {
	mut := "const"
	if gt.IsMutable {
		mut = "mut"
	}
	return mut + " " + valueTypeName(gt.ValueType)
}
