package worldmap

// Width and Height are the dimensions of the world map in character cells.
const (
	Width  = 73
	Height = 25
)

// baseMap is an equirectangular ASCII world map: row 0 is latitude 90,
// column 0 is longitude -180.
var baseMap = [Height]string{
	"|                                                                       |",
	"|          . _..::__:  ,-\"-\"._        |]       ,     _,.__              |",
	"|  _.___ _ _<_>`!(._`.`-.    /         _._     `_ ,_/  '  '-._.---.-.__ |",
	"|.{     \" \"  -==,',._\\{  \\  /  {) _   / _ \">_,-' `                 /-/_ |",
	"|\\_.:--.        ._ )`^-.  \"'     / ( [_/(                        __,/-' |",
	"|'\"'    \\        \"    _\\         -_,--'                        /. (|    |",
	"|       |           ,'          _)_.\\\\._ <> {}             _,' /  '     |",
	"|       `.         /           [_/_'   \"(                <'}  )         |",
	"|        \\\\    .-. )           /   `-'\"..' `:._          _)  '          |",
	"|          \\  (   `(          /         `:\\  > \\  ,-^.  /' '            |",
	"|           `._,   \"\"         |           \\`'   \\|   ?_)  {\\            |",
	"|               =.---.        `._._       ,'     \"`  |' ,- '.           |",
	"|                |    `-._         |     /          `:`<_|=--._         |",
	"|                (        >        .     | ,          `=.__.`-'\\        |",
	"|                  .     /         |     |{|               ,-.,\\        |",
	"|                  |   ,'           \\   / `'             ,\"     `\\      |",
	"|                  |  /              |_'                 |  __   /      |",
	"|                  | |                                   '-'  `-'     \\.|",
	"|                  |/                                          \"      / |",
	"|                  \\.                                                '  |",
	"|                                                                       |",
	"|                   ,/           _ _____._.--._ _..---.---------.       |",
	"|__,-----\"-..?----_/ )\\    . ,-'\"              \"                  (__--/|",
	"|                    /__/\\/                                             |",
	"|                                                                       |",
}
