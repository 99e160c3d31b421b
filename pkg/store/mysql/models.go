package mysql

import "modelmine/pkg/store/mysql/model"

// Re-export types from model package

type (
	User         = model.User
	Node         = model.Node
	Job          = model.Job
	Contribution = model.Contribution
	LedgerBlock  = model.LedgerBlock

	JSONMap = model.JSONMap
)
