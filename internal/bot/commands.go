package bot

import "github.com/park285/isle-dino-bot/internal/discord"

func opt(typ int, name, desc string, required bool) discord.CommandOption {
	return discord.CommandOption{Type: typ, Name: name, Description: desc, Required: required}
}

func subcmd(name, desc string, opts ...discord.CommandOption) discord.CommandOption {
	return discord.CommandOption{Type: discord.OptionSubCommand, Name: name, Description: desc, Options: opts}
}

// Commands is the slash-command set registered at startup.
func Commands() []discord.Command {
	return []discord.Command{
		{Name: "save", Description: "Сохранить текущего динозавра (затем выйдите через safelog)"},
		{Name: "dinos", Description: "Список сохранённых динозавров"},
		{Name: "profile", Description: "Профиль, баланс и слоты"},
		{Name: "balance", Description: "Баланс TK"},
		{Name: "shop", Description: "Магазин динозавров"},
		{Name: "buy", Description: "Купить динозавра", Options: []discord.CommandOption{
			opt(discord.OptionString, "species", "Название или класс динозавра", true),
		}},
		{Name: "release", Description: "Удалить сохранённого динозавра", Options: []discord.CommandOption{
			opt(discord.OptionString, "id", "ID из /dinos", true),
		}},
		{Name: "restore", Description: "Восстановить сохранённого динозавра в игре", Options: []discord.CommandOption{
			opt(discord.OptionString, "id", "ID из /dinos", true),
		}},
		{Name: "slay", Description: "Убить текущего динозавра"},
		{Name: "nutrients", Description: "Установить питательные вещества (0-100)", Options: []discord.CommandOption{
			opt(discord.OptionInteger, "protein", "Белки", true),
			opt(discord.OptionInteger, "carbs", "Углеводы", true),
			opt(discord.OptionInteger, "lipids", "Жиры", true),
		}},
		{Name: "subscription", Description: "Подписки", Options: []discord.CommandOption{
			subcmd("tiers", "Доступные подписки"),
			subcmd("buy", "Купить подписку", opt(discord.OptionString, "tier", "Название подписки", true)),
			subcmd("status", "Текущая подписка"),
			subcmd("autorenew", "Автопродление", opt(discord.OptionBoolean, "enabled", "Включить", true)),
		}},
		{Name: "admin", Description: "Команды администратора", Options: []discord.CommandOption{
			subcmd("link", "Привязать Steam-аккаунт",
				opt(discord.OptionUser, "user", "Пользователь", true),
				opt(discord.OptionString, "steam_id", "SteamID64", true)),
			subcmd("unlink", "Отвязать Steam-аккаунт", opt(discord.OptionUser, "user", "Пользователь", true)),
			subcmd("whois", "Найти владельца SteamID", opt(discord.OptionString, "steam_id", "SteamID64", true)),
			subcmd("give", "Начислить TK",
				opt(discord.OptionUser, "user", "Пользователь", true),
				opt(discord.OptionInteger, "amount", "Сумма", true)),
			subcmd("take", "Списать TK",
				opt(discord.OptionUser, "user", "Пользователь", true),
				opt(discord.OptionInteger, "amount", "Сумма", true)),
			subcmd("restore", "Применить статы игроку",
				opt(discord.OptionString, "steam_id", "SteamID64", true),
				opt(discord.OptionInteger, "growth", "Рост", true),
				opt(discord.OptionInteger, "hunger", "Голод", true),
				opt(discord.OptionInteger, "thirst", "Жажда", true),
				opt(discord.OptionInteger, "health", "Здоровье", true)),
		}},
	}
}
