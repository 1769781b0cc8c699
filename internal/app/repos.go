package app

import (
	"gorm.io/gorm"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/repos"
)

type Repos struct {
	Learner      repos.LearnerRepo
	Source       repos.SourceRepo
	Fact         repos.FactRepo
	FactLink     repos.FactLinkRepo
	ReviewState  repos.ReviewStateRepo
	GestureEvent repos.GestureEventRepo
	VideoScript  repos.VideoScriptRepo
	Job          repos.JobRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Learner:      repos.NewLearnerRepo(db, log),
		Source:       repos.NewSourceRepo(db, log),
		Fact:         repos.NewFactRepo(db, log),
		FactLink:     repos.NewFactLinkRepo(db, log),
		ReviewState:  repos.NewReviewStateRepo(db, log),
		GestureEvent: repos.NewGestureEventRepo(db, log),
		VideoScript:  repos.NewVideoScriptRepo(db, log),
		Job:          repos.NewJobRepo(db, log),
	}
}
