package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[HandleLaunchMessage] = (*HandleLaunchCommand)(nil)
	_ gocmd.Commander[SubmitGradeMessage]  = (*SubmitGradeCommand)(nil)
	_ gocmd.Commander[PurgeExpiredMessage] = (*PurgeExpiredCommand)(nil)
)
