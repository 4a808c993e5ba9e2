package catalog

import "context"

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]Package, error) {
	return s.repo.ListActive(ctx)
}

// Get returns a package that can currently be bought.
func (s *Service) Get(ctx context.Context, id int64) (*Package, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrPackageInactive
	}
	return p, nil
}
