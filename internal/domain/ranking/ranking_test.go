package ranking_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository/memory"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/ranking"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

func seed(repo *memory.Store, players []model.Player, career []model.CareerStats, scoped []model.ScopedBest) {
	err := repo.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		for _, p := range players {
			if err := tx.UpsertPlayer(ctx, p); err != nil {
				return err
			}
		}
		for _, c := range career {
			if err := tx.PutCareerStats(ctx, c); err != nil {
				return err
			}
		}
		for _, b := range scoped {
			if err := tx.InsertScopedBest(ctx, b); err != nil {
				return err
			}
		}
		return nil
	})
	So(err, ShouldBeNil)
}

func TestCareerOrder(t *testing.T) {
	Convey("Given career summaries that tie on successive keys", t, func() {
		repo := memory.New()
		svc := ranking.New(repo, ranking.WithLogger(logger.Nop()))
		ctx := context.Background()
		players := []model.Player{
			{ID: 1, Username: "ana"}, {ID: 2, Username: "beto"}, {ID: 3, Username: "caro"},
			{ID: 4, Username: "dani"}, {ID: 5, Username: "eli"}, {ID: 6, Username: "fede"},
		}
		career := []model.CareerStats{
			{UserID: 1, StagesCompleted: 3, TotalScore: 400, TotalHintsUsed: 2, TotalTimeSeconds: 200, LastActivityAt: t0},
			{UserID: 2, StagesCompleted: 4, TotalScore: 300, TotalHintsUsed: 5, TotalTimeSeconds: 400, LastActivityAt: t0},
			{UserID: 3, StagesCompleted: 3, TotalScore: 400, TotalHintsUsed: 1, TotalTimeSeconds: 300, LastActivityAt: t0},
			{UserID: 4, StagesCompleted: 3, TotalScore: 400, TotalHintsUsed: 2, TotalTimeSeconds: 150, LastActivityAt: t0},
			{UserID: 5, StagesCompleted: 3, TotalScore: 400, TotalHintsUsed: 2, TotalTimeSeconds: 150, LastActivityAt: t0.Add(-time.Hour)},
			{UserID: 6, StagesCompleted: 3, TotalScore: 450, TotalHintsUsed: 6, TotalTimeSeconds: 900, LastActivityAt: t0},
		}
		seed(repo, players, career, nil)
		want := []int64{2, 6, 3, 5, 4, 1}

		Convey("When listing the whole board", func() {
			rows, err := svc.CareerLeaderboard(ctx, 100, 0)

			Convey("Then every key decides in turn", func() {
				So(err, ShouldBeNil)
				got := make([]int64, len(rows))
				for i, r := range rows {
					got[i] = r.UserID
					So(r.Rank, ShouldEqual, i+1)
				}
				So(got, ShouldResemble, want)
			})

			Convey("Then each user's rank equals their position", func() {
				for i, id := range want {
					pos, entry, err := svc.CareerRank(ctx, id)
					So(err, ShouldBeNil)
					So(pos.Rank, ShouldEqual, i+1)
					So(pos.TotalPlayers, ShouldEqual, len(want))
					So(entry.UserID, ShouldEqual, id)
				}
			})
		})

		Convey("When paging", func() {
			rows, err := svc.CareerLeaderboard(ctx, 2, 3)

			Convey("Then ranks continue from the offset", func() {
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 2)
				So(rows[0].UserID, ShouldEqual, 5)
				So(rows[0].Rank, ShouldEqual, 4)
				So(rows[1].Rank, ShouldEqual, 5)
			})
		})

		Convey("When a summary changes", func() {
			seed(repo, nil, []model.CareerStats{{UserID: 1, StagesCompleted: 5, TotalScore: 700, LastActivityAt: t0}}, nil)

			Convey("Then the board reorders", func() {
				pos, _, err := svc.CareerRank(ctx, 1)
				So(err, ShouldBeNil)
				So(pos.Rank, ShouldEqual, 1)
				So(pos.TotalPlayers, ShouldEqual, 6)
			})
		})

		Convey("When the user has no summary", func() {
			_, _, err := svc.CareerRank(ctx, 99)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestScoreTables(t *testing.T) {
	Convey("Given scoped bests across regions and countries", t, func() {
		repo := memory.New()
		svc := ranking.New(repo, ranking.WithLogger(logger.Nop()), ranking.WithLimits(3, 50))
		ctx := context.Background()
		players := []model.Player{
			{ID: 1, Username: "zoe", CountryCode: "UY"},
			{ID: 2, Username: "ana", CountryCode: "AR"},
			{ID: 3, Username: "bruno", CountryCode: "UY"},
			{ID: 4, Username: "carla", CountryCode: "UY"},
			{ID: 5, Username: "dario", CountryCode: "AR"},
		}
		scoped := []model.ScopedBest{
			{UserID: 1, Scope: "career", MaxScore: 500, MaxScoreAt: t0},
			{UserID: 2, Scope: "career", MaxScore: 500, MaxScoreAt: t0},
			{UserID: 3, Scope: "career", MaxScore: 500, MaxScoreAt: t0.Add(-time.Minute)},
			{UserID: 4, Scope: "career", MaxScore: 320, MaxScoreAt: t0},
			{UserID: 5, Scope: "career", MaxScore: 610, MaxScoreAt: t0.Add(time.Hour)},
			{UserID: 1, Scope: "america", MaxScore: 90, MaxScoreAt: t0},
			{UserID: 4, Scope: "america", MaxScore: 120, MaxScoreAt: t0},
			{UserID: 2, Scope: "europe", MaxScore: 40, MaxScoreAt: t0},
		}
		seed(repo, players, nil, scoped)

		Convey("When listing the global board", func() {
			rows, err := svc.ScoreLeaderboard(ctx, ranking.Query{Kind: ranking.KindGlobal}, 0, 0)

			Convey("Then max score, record date and username decide, with the default limit", func() {
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 3)
				So([]int64{rows[0].UserID, rows[1].UserID, rows[2].UserID}, ShouldResemble, []int64{5, 3, 2})
			})

			Convey("Then ranks agree with positions", func() {
				all, err := svc.ScoreLeaderboard(ctx, ranking.Query{Kind: ranking.KindGlobal}, 50, 0)
				So(err, ShouldBeNil)
				So(all, ShouldHaveLength, 5)
				for i, r := range all {
					pos, err := svc.ScoreRank(ctx, ranking.Query{Kind: ranking.KindGlobal}, r.UserID)
					So(err, ShouldBeNil)
					So(pos.Rank, ShouldEqual, i+1)
					So(pos.TotalPlayers, ShouldEqual, 5)
				}
			})
		})

		Convey("When listing a country", func() {
			rows, err := svc.ScoreLeaderboard(ctx, ranking.Query{Kind: ranking.KindCountry, Country: "uy"}, 10, 0)

			Convey("Then only that country's career rows are ranked, relative to each other", func() {
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 3)
				So(rows[0].UserID, ShouldEqual, 3)
				So(rows[1].UserID, ShouldEqual, 1)
				So(rows[2].UserID, ShouldEqual, 4)
				pos, err := svc.ScoreRank(ctx, ranking.Query{Kind: ranking.KindCountry, Country: "UY"}, 4)
				So(err, ShouldBeNil)
				So(pos.Rank, ShouldEqual, 3)
				So(pos.TotalPlayers, ShouldEqual, 3)
			})

			Convey("Then paging applies after filtering", func() {
				rows, err := svc.ScoreLeaderboard(ctx, ranking.Query{Kind: ranking.KindCountry, Country: "UY"}, 1, 1)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
				So(rows[0].UserID, ShouldEqual, 1)
				So(rows[0].Rank, ShouldEqual, 2)
			})
		})

		Convey("When listing a region", func() {
			rows, err := svc.ScoreLeaderboard(ctx, ranking.Query{Kind: ranking.KindRegion, Region: "America"}, 10, 0)
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 2)
			So(rows[0].UserID, ShouldEqual, 4)

			_, err = svc.ScoreLeaderboard(ctx, ranking.Query{Kind: ranking.KindRegion, Region: "career"}, 10, 0)
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("When listing a user's own scores", func() {
			rows, err := svc.UserScores(ctx, 1, 10, 0)

			Convey("Then each row carries the rank within its scope", func() {
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 2)
				So(rows[0].Scope, ShouldEqual, "america")
				So(rows[0].Rank, ShouldEqual, 2)
				So(rows[1].Scope, ShouldEqual, "career")
				So(rows[1].Rank, ShouldEqual, 4)
			})
		})

		Convey("When asking for a summary", func() {
			sum, err := svc.Summary(ctx, 1, 2)
			So(err, ShouldBeNil)
			So(sum.GlobalTop, ShouldHaveLength, 2)
			So(sum.UserPositions, ShouldHaveLength, 2)
			So(sum.UserBest.Scope, ShouldEqual, "career")
		})

		Convey("When paging arguments are out of range", func() {
			for _, c := range [][2]int{{-1, 0}, {51, 0}, {10, -1}} {
				_, err := svc.ScoreLeaderboard(ctx, ranking.Query{}, c[0], c[1])
				So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
			}
			_, err := svc.ScoreLeaderboard(ctx, ranking.Query{Kind: ranking.KindCountry}, 10, 0)
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestCountryScopeConfig(t *testing.T) {
	Convey("Given country boards configured to span a region scope", t, func() {
		repo := memory.New()
		svc := ranking.New(repo, ranking.WithLogger(logger.Nop()), ranking.WithCountryScope("america"), ranking.WithGlobalScope("america"))
		seed(repo, []model.Player{{ID: 1, Username: "u1", CountryCode: "BR"}}, nil,
			[]model.ScopedBest{{UserID: 1, Scope: "america", MaxScore: 10, MaxScoreAt: t0}})

		f, err := svc.Filter(ranking.Query{Kind: ranking.KindCountry, Country: "br"})
		So(err, ShouldBeNil)
		So(f, ShouldResemble, repository.ScoreFilter{Scope: "america", CountryCode: "BR"})
		rows, err := svc.ScoreLeaderboard(context.Background(), ranking.Query{Kind: ranking.KindCountry, Country: "BR"}, 5, 0)
		So(err, ShouldBeNil)
		So(rows, ShouldHaveLength, 1)
	})
}

func TestParseKind(t *testing.T) {
	Convey("Given board names", t, func() {
		for _, k := range []string{"career", "GLOBAL", "region", "country", "user"} {
			_, ok := ranking.ParseKind(k)
			So(ok, ShouldBeTrue)
		}
		k, ok := ranking.ParseKind("")
		So(ok, ShouldBeTrue)
		So(k, ShouldEqual, ranking.KindGlobal)
		_, ok = ranking.ParseKind(fmt.Sprint("weekly"))
		So(ok, ShouldBeFalse)
	})
}
