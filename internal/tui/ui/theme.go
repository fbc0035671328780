package ui

import "github.com/gdamore/tcell/v2"

// Theme is the palette every view draws with.
type Theme struct {
	BgColor      tcell.Color
	FgColor      tcell.Color
	BorderColor  tcell.Color
	TitleColor   tcell.Color
	CounterColor tcell.Color

	TableHeaderFg tcell.Color
	TableHeaderBg tcell.Color
	TableCursorFg tcell.Color
	TableCursorBg tcell.Color

	CrumbActiveFg   tcell.Color
	CrumbActiveBg   tcell.Color
	CrumbInactiveFg tcell.Color
	CrumbInactiveBg tcell.Color

	MenuKeyColor      tcell.Color
	NumericKeyColor   tcell.Color
	PromptBorderColor tcell.Color

	FlashInfoColor tcell.Color
	FlashWarnColor tcell.Color
	FlashErrColor  tcell.Color

	// Chat.
	UnreadColor  tcell.Color
	OnlineColor  tcell.Color
	OwnColor     tcell.Color
	PeerColor    tcell.Color
	ReceiptColor tcell.Color
}

// DefaultTheme returns the dark palette.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:      tcell.ColorBlack,
		FgColor:      tcell.ColorSilver,
		BorderColor:  tcell.ColorSteelBlue,
		TitleColor:   tcell.ColorMediumPurple,
		CounterColor: tcell.ColorPapayaWhip,

		TableHeaderFg: tcell.ColorWhite,
		TableHeaderBg: tcell.ColorBlack,
		TableCursorFg: tcell.ColorBlack,
		TableCursorBg: tcell.ColorLightSteelBlue,

		CrumbActiveFg:   tcell.ColorBlack,
		CrumbActiveBg:   tcell.ColorMediumPurple,
		CrumbInactiveFg: tcell.ColorBlack,
		CrumbInactiveBg: tcell.ColorLightSteelBlue,

		MenuKeyColor:      tcell.ColorSteelBlue,
		NumericKeyColor:   tcell.ColorMediumPurple,
		PromptBorderColor: tcell.ColorSteelBlue,

		FlashInfoColor: tcell.ColorNavajoWhite,
		FlashWarnColor: tcell.ColorOrange,
		FlashErrColor:  tcell.ColorOrangeRed,

		UnreadColor:  tcell.ColorOrange,
		OnlineColor:  tcell.ColorLimeGreen,
		OwnColor:     tcell.ColorSkyblue,
		PeerColor:    tcell.ColorMediumPurple,
		ReceiptColor: tcell.ColorGray,
	}
}
