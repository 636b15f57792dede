package commands

import "github.com/bwmarrin/discordgo"

const CommandName = "warikan"

func GetCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:         CommandName,
			Description:  "割り勘の記録と精算",
			DMPermission: boolPtr(false),
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("start", "このチャンネルで割り勘を開始します",
					stringOption("name", "グループ名", false),
					stringOption("base", "基準通貨 (例: JPY)", false),
				),
				subcommand("stop", "割り勘を終了します"),
				subcommand("join", "参加者として登録します"),
				subcommand("member", "参加者を追加します",
					userOption("user", "追加するユーザー", true),
				),
				subcommand("pay", "支払を記録します",
					numberOption("amount", "金額", true),
					stringOption("currency", "通貨コード (省略時は基準通貨)", false),
					stringOption("memo", "メモ", false),
					stringOption("users", "対象者のメンション (省略時は全員)", false),
				),
				subcommand("rate", "通貨レートを設定します",
					stringOption("currency", "通貨コード", true),
					numberOption("value", "1単位あたりの価値", true),
				),
				subcommand("base", "基準通貨を変更します",
					stringOption("currency", "通貨コード", true),
				),
				subcommand("undo", "支払を取り消します (省略時は自分の直近の支払)",
					stringOption("expense", "支払ID", false),
				),
				subcommand("status", "支出の状況を表示します"),
				subcommand("memberlist", "参加者一覧を表示します"),
				subcommand("settle", "精算して支払タスクを作成します"),
				subcommand("done", "支払タスクを完了にします",
					userOption("user", "相手", true),
				),
				subcommand("paid", "一部の支払を記録します",
					userOption("user", "支払先", true),
					numberOption("amount", "金額", true),
				),
				subcommand("remind", "未払いのリマインドを設定します",
					boolOption("enabled", "有効にするか", true),
					intOption("hours", "間隔 (時間)", false),
				),
				subcommand("web", "WebUIのURLを表示します"),
			},
		},
	}
}

func subcommand(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: desc,
		Options:     opts,
	}
}

func option(t discordgo.ApplicationCommandOptionType, name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: t, Name: name, Description: desc, Required: required}
}

func stringOption(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return option(discordgo.ApplicationCommandOptionString, name, desc, required)
}

func numberOption(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return option(discordgo.ApplicationCommandOptionNumber, name, desc, required)
}

func intOption(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return option(discordgo.ApplicationCommandOptionInteger, name, desc, required)
}

func boolOption(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return option(discordgo.ApplicationCommandOptionBoolean, name, desc, required)
}

func userOption(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return option(discordgo.ApplicationCommandOptionUser, name, desc, required)
}

func boolPtr(b bool) *bool {
	return &b
}
