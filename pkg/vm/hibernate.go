package vm

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
)

// machineState is the JSON-serializable part of a snapshot.
type machineState struct {
	Steps    int                `json:"steps"`
	ExitCode int32              `json:"exit_code"`
	Globals  []globalDescriptor `json:"globals"`
}

type globalDescriptor struct {
	Name  string `json:"name"`
	Slots int    `json:"slots"`
}

const stateEntry = "machine_state.json"

func globalEntry(name string) string { return "globals/" + name + ".bin" }

// HibernateToBytes serialises the machine's global memory into an in-memory
// ZIP archive. Only a machine between runs can be saved.
func (m *Machine) HibernateToBytes() ([]byte, error) {
	if m.frame != nil {
		return nil, ErrRunning
	}

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	names := slices.Sorted(maps.Keys(m.objects))
	state := machineState{
		Steps:    m.Steps,
		ExitCode: m.ExitCode,
		Globals:  make([]globalDescriptor, 0, len(names)),
	}
	for _, name := range names {
		state.Globals = append(state.Globals, globalDescriptor{Name: name, Slots: len(m.objects[name].Slots)})
	}

	jsonData, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal machine_state: %w", err)
	}
	if err := writeZipEntry(zw, stateEntry, jsonData); err != nil {
		return nil, err
	}

	for _, name := range names {
		if err := writeZipEntry(zw, globalEntry(name), int64SliceToLE(m.objects[name].Slots)); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// RestoreFromBytes replaces the machine's global memory with the contents of
// an archive produced by HibernateToBytes. The machine is left halted.
func (m *Machine) RestoreFromBytes(data []byte) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}

	fileMap := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		fileMap[f.Name] = f
	}

	jsonData, err := readZipEntry(fileMap, stateEntry)
	if err != nil {
		return err
	}
	var state machineState
	if err := json.Unmarshal(jsonData, &state); err != nil {
		return fmt.Errorf("unmarshal machine_state: %w", err)
	}

	objects := make(map[string]*Object, len(state.Globals))
	for _, g := range state.Globals {
		raw, err := readZipEntry(fileMap, globalEntry(g.Name))
		if err != nil {
			return err
		}
		if len(raw) != g.Slots*8 {
			return fmt.Errorf("global %q: %d bytes for %d slots", g.Name, len(raw), g.Slots)
		}
		objects[g.Name] = &Object{Name: g.Name, Slots: leToInt64Slice(raw)}
	}

	m.objects = objects
	m.frame = nil
	m.Steps = state.Steps
	m.ExitCode = state.ExitCode
	m.Halted = true
	m.Waiting = false
	return nil
}

// HibernateToFile writes the hibernation archive to the given file path.
func (m *Machine) HibernateToFile(path string) error {
	data, err := m.HibernateToBytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RestoreFromFile reads a hibernation archive from the given file path.
func (m *Machine) RestoreFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.RestoreFromBytes(data)
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create zip entry %q: %w", name, err)
	}
	_, err = w.Write(data)
	return err
}

func readZipEntry(fileMap map[string]*zip.File, name string) ([]byte, error) {
	f, ok := fileMap[name]
	if !ok {
		return nil, fmt.Errorf("zip entry %q not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry %q: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func int64SliceToLE(src []int64) []byte {
	out := make([]byte, len(src)*8)
	for i, v := range src {
		binary.LittleEndian.PutUint64(out[i*8:], uint64(v))
	}
	return out
}

func leToInt64Slice(src []byte) []int64 {
	out := make([]int64, len(src)/8)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(src[i*8:]))
	}
	return out
}
