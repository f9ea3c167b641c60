package commands

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/freestylevancouver/volunteer-portal/pkg/core/chatview"
	"github.com/freestylevancouver/volunteer-portal/pkg/core/services"
	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

func messageLine(app *AppContext, m db.Message) string {
	sender := m.SenderName
	if sender == "" {
		sender = m.SenderID
	}
	stamp := m.CreatedAt.In(app.Cfg.Location()).Format("Jan 2 15:04")
	return mutedStyle.Render(stamp) + " " + headingStyle.Render(sender) + ": " + m.Content + " " + mutedStyle.Render(m.ID)
}

// RoomsCmd lists the rooms the caller belongs to
func RoomsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List your chat rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.OpContext()
			defer cancel()

			rooms, err := services.ListRooms(ctx, app.Database, app.Caller())
			if err != nil {
				return err
			}

			app.printf("\n")
			for _, r := range rooms {
				app.printf("  %-30s %-20s %s\n", headingStyle.Render(r.Name), r.Kind, mutedStyle.Render(r.ID))
			}
			app.printf("\n")
			return nil
		},
	}
}

// HistoryCmd prints a room's recent messages
func HistoryCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <room_id>",
		Short: "Show recent messages of a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			ctx, cancel := app.OpContext()
			defer cancel()

			messages, err := services.History(ctx, app.Database, app.Logger, app.Caller(), app.ChatLimits(), args[0], limit)
			if err != nil {
				return err
			}

			app.printf("\n")
			for _, m := range messages {
				app.printf("%s\n", messageLine(app, m))
			}
			app.printf("\n")
			return nil
		},
	}

	cmd.Flags().IntP("limit", "n", 0, "Number of messages (default from config)")
	return cmd
}

// SendCmd posts a message; the words after the room id form the message
func SendCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "send <room_id> <message...>",
		Short: "Send a chat message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.OpContext()
			defer cancel()

			msg, err := services.SendMessage(ctx, app.Database, app.Feed, app.Logger, app.Caller(), app.ChatLimits(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			app.printf("%s\n", messageLine(app, *msg))
			return nil
		},
	}
}

// DeleteMessageCmd deletes one of the caller's messages
func DeleteMessageCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-message <message_id>",
		Short: "Delete one of your messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.OpContext()
			defer cancel()

			if err := services.DeleteOwnMessage(ctx, app.Database, app.Logger, app.Caller(), args[0]); err != nil {
				return err
			}
			app.printf("%s Message deleted\n", okStyle.Render("✓"))
			return nil
		},
	}
}

// CreateTeamRoomCmd creates a team room with its initial members
func CreateTeamRoomCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-team-room <name>",
		Short: "Create a team chat room (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			description, _ := cmd.Flags().GetString("description")
			members, _ := cmd.Flags().GetStringSlice("member")

			ctx, cancel := app.OpContext()
			defer cancel()

			room, err := services.CreateTeamRoom(ctx, app.Database, app.Logger, app.Caller(), services.TeamRoomInput{
				Name:        args[0],
				Description: description,
				MemberIDs:   members,
			})
			if err != nil {
				return err
			}
			app.printf("\n%s Room created: %s (%s)\n\n", okStyle.Render("✓"), room.Name, room.ID)
			return nil
		},
	}

	cmd.Flags().String("description", "", "Room description")
	cmd.Flags().StringSlice("member", nil, "Profile id to add (repeatable)")
	return cmd
}

// AddMemberCmd adds a profile to a room
func AddMemberCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-member <room_id> <profile_id>",
		Short: "Add a volunteer to a chat room (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")

			ctx, cancel := app.OpContext()
			defer cancel()

			if err := services.AddRoomMember(ctx, app.Database, app.Logger, app.Caller(), args[0], args[1], db.MemberRole(role)); err != nil {
				return err
			}
			app.printf("%s Member added\n", okStyle.Render("✓"))
			return nil
		},
	}

	cmd.Flags().String("role", string(db.MemberRoleMember), "Role in the room (owner, member)")
	return cmd
}

// redrawNotice marks lines that repeat part of the room because an older
// message arrived late
const redrawNotice = "-- earlier message arrived, showing from there --"

// watchScreen tracks what a live view has printed. Output stays in timeline
// order: a message that sorts before the last printed line reprints the
// timeline from its position.
type watchScreen struct {
	printed map[string]bool
	last    *db.Message
}

func (w *watchScreen) render(app *AppContext, msgs []db.Message) {
	if w.printed == nil {
		w.printed = make(map[string]bool)
	}

	start := -1
	for i, m := range msgs {
		if !w.printed[m.ID] {
			start = i
			break
		}
	}
	if start < 0 {
		return
	}

	if w.last != nil && chatview.Before(msgs[start], *w.last) {
		app.printf("%s\n", warnStyle.Render(redrawNotice))
	}
	for _, m := range msgs[start:] {
		app.printf("%s\n", messageLine(app, m))
		w.printed[m.ID] = true
		w.last = &m
	}
}

// WatchCmd follows a room live until interrupted
func WatchCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <room_id>",
		Short: "Follow a room's messages live (Ctrl-C to stop)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID := args[0]
			duration, _ := cmd.Flags().GetDuration("duration")

			ctx, stop := signal.NotifyContext(app.Ctx, os.Interrupt)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			caller := app.Caller()
			profile, err := services.CurrentProfile(ctx, app.Database, caller)
			if err != nil {
				return err
			}

			limits := app.ChatLimits()
			load := func(ctx context.Context, roomID string) ([]db.Message, error) {
				return services.History(ctx, app.Database, app.Logger, caller, limits, roomID, 0)
			}
			session := chatview.NewSession(app.Feed, load, profile.ID, limits.HistoryLimit, app.Logger)

			var mu sync.Mutex
			var screen watchScreen
			session.OnMessage = func(db.Message) {
				mu.Lock()
				defer mu.Unlock()
				screen.render(app, session.Messages())
			}

			mu.Lock()
			err = session.SwitchRoom(ctx, roomID)
			if err == nil {
				app.printf("\n%s\n", mutedStyle.Render("Watching "+roomID+", Ctrl-C to stop"))
				screen.render(app, session.Messages())
			}
			mu.Unlock()
			if err != nil {
				return err
			}

			<-ctx.Done()
			session.Close()
			app.printf("\n")
			return nil
		},
	}

	cmd.Flags().Duration("duration", 0, "Stop after this long (default until interrupted)")
	return cmd
}
