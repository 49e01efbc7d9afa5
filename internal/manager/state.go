package manager

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/ehound/internal/downloader"
	"github.com/JakeFAU/ehound/internal/library"
	"github.com/JakeFAU/ehound/internal/retriever"
)

// Save writes the downloader state, retriever state and library snapshot.
func (m *Manager) Save() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	paths := m.cfg.State
	if err := requirePaths(paths); err != nil {
		return err
	}
	if err := m.downloader.Save(paths.Downloader); err != nil {
		return fmt.Errorf("save downloader state: %w", err)
	}
	if err := m.retriever.SaveState(paths.Retriever); err != nil {
		return fmt.Errorf("save retriever state: %w", err)
	}
	if err := m.lib.Save(paths.Library); err != nil {
		return fmt.Errorf("save library: %w", err)
	}
	m.logger.Info("State saved")
	return nil
}

// Load reads all three state files and swaps them in only when every file decoded.
// On error nothing in memory changes.
func (m *Manager) Load() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	paths := m.cfg.State
	if err := requirePaths(paths); err != nil {
		return err
	}
	dl, err := downloader.Decode(paths.Downloader)
	if err != nil {
		return fmt.Errorf("load downloader state: %w", err)
	}
	headers, err := retriever.DecodeState(paths.Retriever)
	if err != nil {
		return fmt.Errorf("load retriever state: %w", err)
	}
	lib, err := library.Load(paths.Library)
	if err != nil {
		return fmt.Errorf("load library: %w", err)
	}

	m.downloader.Replace(dl)
	m.retriever.ReplaceHeaders(headers)
	m.lib.Replace(lib)
	m.logger.Info("State loaded", zap.Int("books", m.lib.Len()))
	return nil
}

func requirePaths(p StatePaths) error {
	if p.Downloader == "" || p.Retriever == "" || p.Library == "" {
		return errors.New("state paths are not configured")
	}
	return nil
}
