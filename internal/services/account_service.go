package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/quarkpan/quarkpan/internal/api"
	"github.com/quarkpan/quarkpan/internal/config"
	"github.com/quarkpan/quarkpan/internal/constants"
	"github.com/quarkpan/quarkpan/internal/logging"
	"github.com/quarkpan/quarkpan/internal/models"
)

// AccountService manages the logged-in account and its destination folder.
type AccountService struct {
	client *api.Client
	cfg    *config.Config
	logger *logging.Logger
}

// NewAccountService creates an account service updating cfg in place.
func NewAccountService(client *api.Client, cfg *config.Config, logger *logging.Logger) *AccountService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AccountService{client: client, cfg: cfg, logger: logger}
}

// Identify fetches the account and makes it the active user. Switching to a
// different user resets the destination to the root folder. Reports whether
// the destination was reset.
func (s *AccountService) Identify(ctx context.Context) (*api.AccountInfo, bool, error) {
	info, err := s.client.GetAccountInfo(ctx)
	if err != nil {
		return nil, false, err
	}
	reset := s.cfg.SwitchUser(info.Nickname)
	if reset {
		s.logger.Info().Str("user", info.Nickname).Msg("active user changed, destination reset to root")
	}
	return info, reset, nil
}

// RootFolders lists the folders directly under the storage root.
func (s *AccountService) RootFolders(ctx context.Context) ([]models.FolderEntry, error) {
	return s.client.ListRootFolders(ctx)
}

// SetDestination selects a destination folder. "0" selects the root. Any
// other id must be one of the root folders.
func (s *AccountService) SetDestination(ctx context.Context, id string) (models.FolderEntry, error) {
	id = strings.TrimSpace(id)
	if id == "" || id == constants.RootFolderID {
		s.cfg.SetDestination(constants.RootFolderID, constants.RootFolderName)
		return models.FolderEntry{ID: constants.RootFolderID, Name: constants.RootFolderName}, nil
	}

	folders, err := s.RootFolders(ctx)
	if err != nil {
		return models.FolderEntry{}, err
	}
	for _, f := range folders {
		if f.ID == id {
			s.cfg.SetDestination(f.ID, f.Name)
			return f, nil
		}
	}
	return models.FolderEntry{}, fmt.Errorf("folder %s is not a root folder of this account", id)
}

// CreateFolder creates a root folder and makes it the destination. A name
// conflict is returned as an *api.APIError of KindConflict.
func (s *AccountService) CreateFolder(ctx context.Context, name string) (models.FolderEntry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.FolderEntry{}, fmt.Errorf("folder name cannot be empty")
	}
	id, err := s.client.CreateFolder(ctx, constants.RootFolderID, name)
	if err != nil {
		return models.FolderEntry{}, err
	}
	s.cfg.SetDestination(id, name)
	s.logger.Info().Str("dir_id", id).Str("name", name).Msg("folder created")
	return models.FolderEntry{ID: id, Name: name}, nil
}
